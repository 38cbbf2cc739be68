// Package logx is towerbot's logging facade.
//
// A Service owns the sink set (console, rotating files, journald, the
// webhook worker and the error aggregator), the filter chain applied in
// front of it and the audit logger. Logger is the lightweight handle code
// logs through; it stays live across Service.Apply calls.
//
// Every record passes the level threshold, then the filter chain, then each
// sink whose own minimum level admits it. Sink failures go to a throttled
// stderr channel and never reach the caller.
package logx
