package health

import (
	"fmt"
	"net/http"
	"os"

	"github.com/heptiolabs/healthcheck"

	"postdrop/backend/internal/storage"
)

// Checker wires liveness and readiness probes for the store and the
// attachment root.
type Checker struct {
	handler healthcheck.Handler
}

// NewChecker creates the probe handler. The store check gates readiness so
// a lost database takes the instance out of rotation without killing it.
func NewChecker(store storage.Store, attachmentRoot string) *Checker {
	handler := healthcheck.NewHandler()

	handler.AddReadinessCheck("store", func() error {
		return store.Health()
	})
	handler.AddReadinessCheck("attachment-root", func() error {
		info, err := os.Stat(attachmentRoot)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", attachmentRoot)
		}
		return nil
	})
	handler.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(2000))

	return &Checker{handler: handler}
}

// LiveEndpoint serves /health/live.
func (c *Checker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	c.handler.LiveEndpoint(w, r)
}

// ReadyEndpoint serves /health/ready.
func (c *Checker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	c.handler.ReadyEndpoint(w, r)
}
