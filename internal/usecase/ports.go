// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/formularium/formularium-backend/internal/usecase")

// TxManager はトランザクション境界のインターフェース。
// fn に渡されるコンテキストを使ったリポジトリ操作は同一トランザクションで実行される。
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Metrics は運用メトリクスの記録先。
type Metrics interface {
	SubmissionSigned(duration time.Duration)
	SubmissionRejected(reason string)
	SigningKeyRotated()
}

type nopMetrics struct{}

func (nopMetrics) SubmissionSigned(time.Duration) {}
func (nopMetrics) SubmissionRejected(string)      {}
func (nopMetrics) SigningKeyRotated()             {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
