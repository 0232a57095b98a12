package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"hivemind.ai/internal/sim/gridworld"
	"hivemind.ai/internal/transport/observer"
	"hivemind.ai/internal/transport/ws"
)

// observedWorld pushes a frame to observers after every world step.
type observedWorld struct {
	*gridworld.World
	feed *observer.Server
}

func (o observedWorld) Step() {
	o.World.Step()
	o.feed.Publish()
}

func main() {
	var (
		addr      = flag.String("addr", ":8080", "http listen address")
		worldPath = flag.String("world", "", "path to world.yaml (default: built-in demo world)")
		tickRate  = flag.Int("tick_rate", 0, "max ticks per second (0: use world.yaml)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := gridworld.Load(*worldPath)
	if err != nil {
		logger.Fatalf("load world: %v", err)
	}
	if *tickRate > 0 {
		cfg.TickRateHz = *tickRate
	}
	w, err := gridworld.New(cfg)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	logger.Printf("world zones=%d agents=%d tick_rate=%d", len(cfg.Zones), len(cfg.Agents), cfg.TickRateHz)

	feed := observer.NewServer(w, log.New(os.Stdout, "[observer] ", log.LstdFlags))
	wsSrv, err := ws.NewServer(observedWorld{World: w, feed: feed}, cfg.TickRateHz, logger)
	if err != nil {
		logger.Fatalf("ws server: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(rw, "# HELP hivemind_world_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE hivemind_world_tick gauge\n")
		fmt.Fprintf(rw, "hivemind_world_tick %d\n", w.Tick())

		fmt.Fprintf(rw, "# HELP hivemind_world_agents Live agents per zone.\n")
		fmt.Fprintf(rw, "# TYPE hivemind_world_agents gauge\n")
		perZone := map[string]int{}
		for _, a := range w.Agents() {
			perZone[a.Zone]++
		}
		zones := w.Zones()
		for _, z := range zones {
			fmt.Fprintf(rw, "hivemind_world_agents{zone=%q} %d\n", z.Name, perZone[z.Name])
		}

		fmt.Fprintf(rw, "# HELP hivemind_facility_reserve Facility reserve.\n")
		fmt.Fprintf(rw, "# TYPE hivemind_facility_reserve gauge\n")
		for _, z := range zones {
			if z.Facility != nil {
				fmt.Fprintf(rw, "hivemind_facility_reserve{zone=%q,facility=%q} %d\n", z.Name, z.Facility.ID, z.Facility.Reserve)
			}
		}

		fmt.Fprintf(rw, "# HELP hivemind_objective_level Objective level.\n")
		fmt.Fprintf(rw, "# TYPE hivemind_objective_level gauge\n")
		for _, z := range zones {
			if z.Objective != nil {
				fmt.Fprintf(rw, "hivemind_objective_level{zone=%q,objective=%q} %d\n", z.Name, z.Objective.ID, z.Objective.Level)
			}
		}

		fmt.Fprintf(rw, "# HELP hivemind_observers Connected observers.\n")
		fmt.Fprintf(rw, "# TYPE hivemind_observers gauge\n")
		fmt.Fprintf(rw, "hivemind_observers %d\n", feed.Observers())
		fmt.Fprintf(rw, "# HELP hivemind_observer_frames_dropped_total Frames skipped for slow observers.\n")
		fmt.Fprintf(rw, "# TYPE hivemind_observer_frames_dropped_total counter\n")
		fmt.Fprintf(rw, "hivemind_observer_frames_dropped_total %d\n", feed.Dropped())
	})

	if envBool("HM_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				Tick   uint64 `json:"tick"`
				Zones  any    `json:"zones"`
				Agents any    `json:"agents"`
			}{
				Tick:   w.Tick(),
				Zones:  w.Zones(),
				Agents: w.Agents(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/observer/bootstrap", feed.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", feed.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (HM_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("HM_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(name string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}
