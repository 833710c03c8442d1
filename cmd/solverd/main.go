// Command solverd runs the resolver core behind a UDP DNS front end:
// this file is where config, logging, and the miekg/dns server loop are
// wired together.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/miekg/dns"

	"github.com/nimbusdns/solvere"
	"github.com/nimbusdns/solvere/config"
	"github.com/nimbusdns/solvere/hints"
	"github.com/nimbusdns/solvere/logutil"
	"github.com/nimbusdns/solvere/query"
)

func main() {
	listenAddr := flag.String("listen", "127.0.0.1:53", "address to listen on for client queries")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "solverd: loading config:", err)
		os.Exit(1)
	}

	if err := logutil.Configure(cfg.Env, cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "solverd: configuring logger:", err)
		os.Exit(1)
	}
	log := logutil.Get()

	hooks := query.Hooks{
		OnQueryEnd: func(name string, qtype uint16, rcode int) {
			log.Debug(map[string]any{"qname": name, "qtype": qtype, "rcode": rcode}, "query finished")
		},
	}

	resolver, err := solvere.New(*cfg, hints.DefaultRoots, log, hooks)
	if err != nil {
		log.Error(map[string]any{"err": err.Error()}, "resolver construction failed")
		os.Exit(1)
	}

	srv := &server{resolver: resolver, log: log}
	dns.HandleFunc(".", srv.handleQuery)

	udp := &dns.Server{Addr: *listenAddr, Net: "udp"}
	log.Info(map[string]any{"addr": *listenAddr}, "solverd listening")
	if err := udp.ListenAndServe(); err != nil {
		log.Error(map[string]any{"err": err.Error()}, "server exited")
		os.Exit(1)
	}
}

// server adapts the miekg/dns request/response handler shape to
// Resolver.Resolve, keeping the network handler separate from the
// resolver package proper.
type server struct {
	resolver *solvere.Resolver
	log      logutil.Logger
}

func (s *server) handleQuery(w dns.ResponseWriter, req *dns.Msg) {
	defer w.Close()

	resp := s.resolver.Resolve(context.Background(), req)
	if err := w.WriteMsg(resp); err != nil {
		s.log.Warn(map[string]any{"err": err.Error()}, "failed to write response")
	}
}
