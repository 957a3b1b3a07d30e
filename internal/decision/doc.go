// Package decision turns ranked candidates into pin verdicts. Sources are
// pluggable: the threshold pinner decides automatically, the recorder logs
// every decisive verdict to a JSON-lines file, and the replay source feeds a
// recorded log back in, refusing to replay a decision whose evidence no
// longer matches.
package decision
