/*
Package rollup builds the coarse buckets the query planner depends on.

Talker and protocol samples arrive as 5-second buckets. Once an hour is
complete the roller reads its fine samples and writes:

	talkers     1h   one record per (client, server) pair, bytes summed
	protocols   1h   one record per application, bytes summed
	timeseries  5s   total talker bytes per sample timestamp
	timeseries  5m   total talker bytes per 5-minute window

	10:00:00  A->B 100   A->C 50              timeseries 5s  10:00:00 150
	10:00:05  A->B 20                         timeseries 5s  10:00:05 20
	...
	                         talkers 1h  10:00  A->B 120   A->C 50
	                         timeseries 5m 10:00  170

Writes replace records with the same identity, so rolling an hour twice
(for example after late samples arrive) is safe.

# Scheduling

pkg/server runs RollupHour for the previous hour once per hour with retry
and exponential backoff, and backfills recent hours on startup. Failures are
tracked by the rollup monitor and surfaced on /v1/health.
*/
package rollup
