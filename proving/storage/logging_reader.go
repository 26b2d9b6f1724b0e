package storage

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// ProgressInterval is how often a loggingReader reports progress.
var ProgressInterval = 10 * time.Second

type loggingReader struct {
	io.Reader
	io.Closer
	message string
	key     string
	size    int64
	start   sync.Once
	done    chan struct{}
	stop    sync.Once
	n       atomic.Int64
}

// NewLoggingReader logs how much of r has been consumed every
// ProgressInterval until it is closed. size may be zero when unknown.
func NewLoggingReader(r io.ReadCloser, message, key string, size int64) io.ReadCloser {
	return &loggingReader{
		Reader:  r,
		Closer:  r,
		message: message,
		key:     key,
		size:    size,
		done:    make(chan struct{}),
	}
}

func (p *loggingReader) Read(b []byte) (int, error) {
	p.start.Do(func() {
		go p.report()
	})
	n, err := p.Reader.Read(b)
	p.n.Add(int64(n))
	return n, err
}

func (p *loggingReader) report() {
	ticker := time.NewTicker(ProgressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			n := p.n.Load()
			if p.size > 0 {
				log.Info(p.message, "file", p.key, "current", n, "total", p.size, "percent", n*100/p.size)
			} else {
				log.Info(p.message, "file", p.key, "current", n)
			}
		}
	}
}

func (p *loggingReader) Close() error {
	p.stop.Do(func() {
		close(p.done)
	})
	log.Debug("Closed", "file", p.key, "current", p.n.Load(), "total", p.size)
	return p.Closer.Close()
}
