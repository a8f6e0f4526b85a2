// Package scan 在解析上传文档之前调用 ClamAV 做病毒扫描。
package scan

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/dutchcoders/go-clamd"

	"cvinsight/internal/analysis"
)

// Scanner 检查文档字节；干净时返回 nil。
type Scanner interface {
	Scan(ctx context.Context, data []byte) error
}

// Noop 不做任何检查，CLAMD_ADDR 为空时使用。
type Noop struct{}

func (Noop) Scan(context.Context, []byte) error { return nil }

type streamScanner interface {
	ScanStream(r io.Reader, abort chan bool) (chan *clamd.ScanResult, error)
}

// ClamdScanner 通过 clamd INSTREAM 扫描文档。
type ClamdScanner struct {
	client streamScanner
}

// New 根据地址返回 Scanner；地址为空时返回 Noop。
func New(addr string) Scanner {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Noop{}
	}
	return &ClamdScanner{client: clamd.NewClamd(addr)}
}

// Scan 命中病毒时返回 UnsupportedFormat(reason=malware)，
// 与 clamd 通信失败时返回 ExtractionFailed(reason=scan_failed)。
func (s *ClamdScanner) Scan(ctx context.Context, data []byte) error {
	abort := make(chan bool)
	defer close(abort)

	results, err := s.client.ScanStream(bytes.NewReader(data), abort)
	if err != nil {
		return scanFailed(err)
	}

	for {
		select {
		case <-ctx.Done():
			return scanFailed(ctx.Err())
		case result, ok := <-results:
			if !ok {
				return nil
			}
			if result == nil {
				continue
			}
			switch result.Status {
			case clamd.RES_OK:
			case clamd.RES_FOUND:
				e := analysis.UnsupportedFormat("malicious file detected: %s", result.Description)
				e.Reason = analysis.ReasonMalware
				return e
			default:
				return scanFailed(errors.New(strings.TrimSpace(result.Raw)))
			}
		}
	}
}

func scanFailed(err error) error {
	e := analysis.ExtractionFailed(err, "virus scan failed")
	e.Reason = analysis.ReasonScanFailed
	return e
}
