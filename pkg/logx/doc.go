// Package logx is remindbot's structured logging layer: a thin logx.Logger
// wrapper over zerolog with a hot-swappable sink set. Console output stays
// human-readable (short timestamp, file:line caller), the file sink writes
// JSON lines, and an optional Telegram mirror reposts lines above a minimum
// level under a rate cap.
package logx
