package cpu

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// csvRecords reads a CSV document with a header row and returns one map per
// data row, keyed by lower-cased column name.
func csvRecords(r io.Reader, required ...string) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var out []map[string]string
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row := make(map[string]string, len(cols))
		for name, i := range cols {
			if i < len(rec) {
				row[name] = strings.TrimSpace(rec[i])
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func parseFloats(row map[string]string, names ...string) ([]float64, error) {
	out := make([]float64, len(names))
	for i, n := range names {
		v, err := strconv.ParseFloat(row[n], 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", n, err)
		}
		out[i] = v
	}
	return out, nil
}

// ReadBPParams reads BP curves from CSV. Columns: workload, power_d,
// power_e, power_g, power_k, speed_a, speed_b, speed_c, speed_d. When a
// "model" column is present only rows matching model are kept.
func ReadBPParams(r io.Reader, model string) (map[string]BPParams, error) {
	rows, err := csvRecords(r, "workload", "power_d", "power_e", "power_g", "power_k",
		"speed_a", "speed_b", "speed_c", "speed_d")
	if err != nil {
		return nil, err
	}
	params := make(map[string]BPParams)
	for i, row := range rows {
		if m, ok := row["model"]; ok && model != "" && m != model {
			continue
		}
		v, err := parseFloats(row, "power_d", "power_e", "power_g", "power_k",
			"speed_a", "speed_b", "speed_c", "speed_d")
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		params[row["workload"]] = BPParams{
			Power: PowerParams{D: v[0], E: v[1], G: v[2], K: v[3]},
			Speed: SpeedParams{A: v[4], B: v[5], C: v[6], D: v[7]},
		}
	}
	return params, nil
}

// ReadTableEntries reads measured points from CSV. Columns: workload, freq,
// voltage, power, speed. An optional "model" column filters rows.
func ReadTableEntries(r io.Reader, model string) ([]TableEntry, error) {
	rows, err := csvRecords(r, "workload", "freq", "voltage", "power", "speed")
	if err != nil {
		return nil, err
	}
	var out []TableEntry
	for i, row := range rows {
		if m, ok := row["model"]; ok && model != "" && m != model {
			continue
		}
		v, err := parseFloats(row, "voltage", "power", "speed")
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		f, err := strconv.ParseUint(row["freq"], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("row %d, column freq: %w", i+1, err)
		}
		out = append(out, TableEntry{
			Workload: row["workload"],
			OPP:      OPP{Voltage: v[0], Frequency: uint(f)},
			Power:    v[1],
			Speed:    v[2],
		})
	}
	return out, nil
}
