package logging

import (
	"log/slog"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof on DefaultServeMux
)

func startPprof(addr string) {
	go func() {
		Logger().Info("pprof_listen", slog.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			Logger().Error("pprof_failed", slog.String("addr", addr), slog.String("error", err.Error()))
		}
	}()
}
