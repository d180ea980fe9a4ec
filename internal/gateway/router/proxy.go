package router

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmehra2102/smart-food-ordering/internal/gateway/downstream"
)

// proxy forwards the request to target unchanged and relays the answer. An
// empty path keeps the incoming one.
func (rt *Router) proxy(target string, fwd Forwarder, path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := path
		if p == "" {
			p = r.URL.Path
		}

		var resp downstream.Response
		err := rt.call(r.Context(), target, func(ctx context.Context) error {
			var err error
			resp, err = fwd.Forward(ctx, r, p)
			return err
		})

		var se *downstream.StatusError
		if err != nil && !errors.As(err, &se) {
			writeDownstreamError(w, err)
			return
		}
		relay(w, resp)
	}
}

func relay(w http.ResponseWriter, resp downstream.Response) {
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}
