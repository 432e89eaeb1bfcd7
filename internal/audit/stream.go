// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"encoding/json"
	"io"

	"github.com/ecoaudit/cpuaudit/internal/schedule"
)

// Record is one newline-delimited JSON line of the optional streaming
// surface: host energy, host ticks and the sliding-window attribution
// for a single tick, grounded on the teacher's stdout exporter idiom
// (internal/exporter/stdout) even though no pretty-printing is
// reproduced here.
type Record struct {
	AuditID        string  `json:"audit_id"`
	TickID         int64   `json:"tick_id"`
	ScheduleIndex  int64   `json:"schedule_index"`
	StartNs        int64   `json:"start_ns"`
	SkippedPeriods int64   `json:"skipped_periods"`
	HostEnergyJ    float64 `json:"host_energy_j"`
	HostDeltaUj    uint64  `json:"host_delta_uj"`
	Ok             bool    `json:"ok"`
	Reason         string  `json:"reason,omitempty"`
	Samples        int     `json:"samples"`
	ProcessShare   float64 `json:"process_cpu_energy_share"`
	ProcessEnergyJ float64 `json:"process_cpu_energy_j"`
	HostCarbonG    float64 `json:"host_carbon_gco2e"`
	ProcessCarbonG float64 `json:"process_carbon_gco2e"`
}

// JSONLEncoder writes one Record per line as newline-delimited JSON.
type JSONLEncoder struct {
	enc *json.Encoder
}

// NewJSONLEncoder wraps w for streaming tick output.
func NewJSONLEncoder(w io.Writer) *JSONLEncoder {
	return &JSONLEncoder{enc: json.NewEncoder(w)}
}

// Encode writes one tick's record. The json.Encoder already appends a
// trailing newline per call, producing valid JSONL.
func (e *JSONLEncoder) Encode(r Record) error {
	return e.enc.Encode(r)
}

// recordFromWindow assembles a streaming Record from a scheduler tick
// and its sliding-window result.
func recordFromWindow(auditID string, tick schedule.Tick, energySample Sample, result WindowResult) Record {
	return Record{
		AuditID:        auditID,
		TickID:         tick.TickID,
		ScheduleIndex:  tick.ScheduleIndex,
		StartNs:        tick.StartNs,
		SkippedPeriods: tick.SkippedPeriods,
		HostEnergyJ:    energySample.Energy.DeltaJ,
		HostDeltaUj:    uint64(energySample.Energy.DeltaUj),
		Ok:             result.OK,
		Reason:         result.Reason,
		Samples:        result.Samples,
		ProcessShare:   result.Share,
		ProcessEnergyJ: result.ProcessEnergyJ,
		HostCarbonG:    result.HostCarbonG,
		ProcessCarbonG: result.ProcessCarbonG,
	}
}
