// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package downloader

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// downloadProgress periodically logs how much of a file has been
// downloaded. It implements io.Writer so it can sit on a TeeReader.
type downloadProgress struct {
	mu      sync.Mutex
	total   int
	written int
	ticker  *time.Ticker
	done    chan struct{}
}

func newDownloadProgress(total int) *downloadProgress {
	return &downloadProgress{total: total}
}

func (p *downloadProgress) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.written += len(b)
	p.mu.Unlock()
	return len(b), nil
}

func (p *downloadProgress) Start() {
	p.ticker = time.NewTicker(5 * time.Second)
	p.done = make(chan struct{})
	go func() {
		for {
			select {
			case <-p.done:
				return
			case <-p.ticker.C:
				p.log()
			}
		}
	}()
}

func (p *downloadProgress) Stop() {
	p.ticker.Stop()
	close(p.done)
	p.log()
}

func (p *downloadProgress) log() {
	p.mu.Lock()
	written := p.written
	p.mu.Unlock()

	ev := log.Debug().Int("bytes", written)
	if p.total > 0 {
		ev = ev.Int("total", p.total)
	}
	ev.Msg("download progress")
}
