package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/lab47/intnet/endpoint"
	"github.com/lab47/intnet/pkg/intnetbuf"
	"github.com/lab47/intnet/pkg/shmem"
	"github.com/lab47/lsvd/logger"
	"github.com/pkg/errors"
)

var (
	fPath     = flag.String("path", "", "path of the shared buffer file")
	fCreate   = flag.Bool("create", false, "create and format the buffer file")
	fRecvSize = flag.Uint("recv-size", 256*1024, "size of the recv ring when creating")
	fSendSize = flag.Uint("send-size", 256*1024, "size of the send ring when creating")
	fRole     = flag.String("role", "host", "side of the buffer to drive: host or guest")
	fMode     = flag.String("mode", "stat", "stat, send or echo")
	fCount    = flag.Int("count", 100, "frames to send in send mode")
	fPoison   = flag.Bool("poison", false, "overwrite consumed records")
	fGso      = flag.Bool("gso", false, "send oversized tcp frames with a gso context")
	fGsoSize  = flag.Int("gso-size", 8000, "tcp payload bytes per frame in gso mode")
	fMss      = flag.Uint("mss", 1460, "segment size advertised in gso mode")
)

func main() {
	flag.Parse()

	if *fPath == "" {
		panic("provide a buffer path")
	}

	log := logger.New(logger.Trace)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	region, buf, err := openBuffer()
	if err != nil {
		log.Error("error opening buffer", "error", err, "path", *fPath)
		os.Exit(1)
	}

	defer region.Close()

	log.Info("buffer ready", "path", *fPath, "size", buf.Size())

	switch *fMode {
	case "stat":
		spew.Dump(buf.Stats())
		return
	case "send", "echo":
	default:
		log.Error("unknown mode", "mode", *fMode)
		os.Exit(1)
	}

	var role endpoint.Role

	switch *fRole {
	case "host":
		role = endpoint.Host
	case "guest":
		role = endpoint.Guest
	default:
		log.Error("unknown role", "role", *fRole)
		os.Exit(1)
	}

	ep := endpoint.New(ctx, log, buf, role)

	if *fMode == "send" {
		err = send(ctx, log, ep)
	} else {
		err = echo(ctx, ep)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("error running", "mode", *fMode, "error", err)
		os.Exit(1)
	}

	spew.Dump(ep.Stats())
}

func openBuffer() (*shmem.Region, *intnetbuf.Buffer, error) {
	var opts []intnetbuf.Option
	if *fPoison {
		opts = append(opts, intnetbuf.WithPoison())
	}

	if !*fCreate {
		region, err := shmem.Open(*fPath)
		if err != nil {
			return nil, nil, err
		}

		buf, err := intnetbuf.Attach(region.Mem, opts...)
		if err != nil {
			region.Close()
			return nil, nil, err
		}

		return region, buf, nil
	}

	total, _, _, err := intnetbuf.Layout(uint32(*fRecvSize), uint32(*fSendSize))
	if err != nil {
		return nil, nil, err
	}

	region, err := shmem.Create(*fPath, int(total))
	if err != nil {
		return nil, nil, err
	}

	buf, err := intnetbuf.Init(region.Mem, uint32(*fRecvSize), uint32(*fSendSize), opts...)
	if err != nil {
		region.Remove()
		return nil, nil, err
	}

	return region, buf, nil
}

func send(ctx context.Context, log logger.Logger, ep *endpoint.Endpoint) error {
	src := net.HardwareAddr{0x02, 0, 0, 0, 0, byte(ep.Role()) + 1}

	for i := 0; i < *fCount; i++ {
		transmit := func() error {
			return ep.TransmitEthernet(ctx, testFrame(src, i))
		}

		if *fGso {
			frame, gctx, err := gsoFrame(src, i, *fGsoSize, uint16(*fMss))
			if err != nil {
				return err
			}

			transmit = func() error {
				return ep.TransmitGso(ctx, frame, gctx)
			}
		}

		for {
			err := transmit()
			if err == nil {
				break
			}

			if !errors.Is(err, intnetbuf.ErrBufferFull) {
				return err
			}

			log.Warn("transmit ring full, backing off", "seq", i)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(endpoint.DefaultPollInterval):
			}
		}
	}

	for ep.Stats().Backlog > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(endpoint.DefaultPollInterval):
		}
	}

	return nil
}

func echo(ctx context.Context, ep *endpoint.Endpoint) error {
	return ep.Receive(ctx, func(f endpoint.Frame) error {
		if f.HasGso {
			return ep.TransmitGso(ctx, f.Data, f.Gso)
		}

		return ep.TransmitFrame(ctx, f.Data)
	})
}
