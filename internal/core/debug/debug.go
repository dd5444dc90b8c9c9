package debug

import (
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
)

// StateFunc returns a snapshot of whatever server state is worth inspecting.
type StateFunc func() interface{}

// StartUtilities spins off the services associated with debug mode.
func StartUtilities(logger *logrus.Logger, pprofPort int, state StateFunc) {
	listenerAddr := fmt.Sprintf("localhost:%d", pprofPort)
	logger.Infof("starting pprof server on %s", listenerAddr)

	go func() {
		if err := http.ListenAndServe(listenerAddr, Handler(state)); err != nil {
			logger.Infof("error starting pprof server: %s", err)
		}
	}()
}

// Handler serves the pprof endpoints (see https://golang.org/pkg/net/http/pprof/)
// along with a dump of the server state at /debug/state.
func Handler(state StateFunc) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/debug/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if state == nil {
			return
		}
		spew.Fdump(w, state())
	})
	return mux
}
