// Command qnetecho is a minimal smoke test for the qnet transport: it runs
// an echo listener and a client against it on the same process, logs the
// client's first event and prints the echoed payload. It is not a
// deployment tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ionchannel/qnet"
	"go.uber.org/zap"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:0", "address to bind the echo listener on")
	message := flag.String("message", "hello", "payload the client sends")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	reactor := qnet.EventLoop(qnet.WithLogger(logger))
	defer reactor.Shutdown()

	server, err := qnet.Accept(reactor, "tcp", *addr)
	if err != nil {
		logger.Fatal("accept", zap.Error(err))
	}
	logger.Info("listening", zap.Stringer("addr", server.Addr))

	go echo(server)

	client, err := qnet.Connect(reactor, "tcp", server.Addr.String())
	if err != nil {
		logger.Fatal("connect", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if ev, ok := client.Inbound.Pop(ctx); ok {
		logger.Info("client observed", zap.String("kind", ev.Kind.String()))
	}

	if err := client.Send([]byte(*message)); err != nil {
		logger.Fatal("send", zap.Error(err))
	}

	ev, ok := client.Inbound.Pop(ctx)
	if !ok {
		logger.Fatal("client never received an echo")
	}
	fmt.Printf("echoed: %s\n", ev.Payload)
}

func echo(server *qnet.ServerHandle) {
	ctx := context.Background()
	for {
		handle, ok := server.Accept.Pop(ctx)
		if !ok {
			return
		}
		go func(h *qnet.Handle) {
			for {
				ev, ok := h.Inbound.Pop(ctx)
				if !ok {
					return
				}
				if ev.Kind == qnet.EventPayload {
					h.Send(ev.Payload)
				}
			}
		}(handle)
	}
}
