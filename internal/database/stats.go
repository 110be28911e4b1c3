package database

import "sort"

// CodeCount количество отказов по паре класс:код.
type CodeCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type Stats struct {
	Total   int            `json:"total"`
	ByClass map[string]int `json:"by_class"`
	TopCode []CodeCount    `json:"top_codes"`
}

// AggregateFailures группирует неудачи по классу и по class:code.
// Пустой класс считается unknown.
func AggregateFailures(jobs []Job, topCodes int) Stats {
	if topCodes <= 0 {
		topCodes = 8
	}
	stats := Stats{ByClass: map[string]int{}}
	codes := map[string]int{}

	for _, j := range jobs {
		if j.Status != StatusFailed && j.Status != StatusManualRequired {
			continue
		}
		stats.Total++
		class := j.FailureClass
		if class == "" {
			class = "unknown"
		}
		stats.ByClass[class]++
		code := j.FailureCode
		if code == "" {
			code = "unspecified"
		}
		codes[class+":"+code]++
	}

	for k, v := range codes {
		stats.TopCode = append(stats.TopCode, CodeCount{Key: k, Count: v})
	}
	sort.Slice(stats.TopCode, func(a, b int) bool {
		if stats.TopCode[a].Count != stats.TopCode[b].Count {
			return stats.TopCode[a].Count > stats.TopCode[b].Count
		}
		return stats.TopCode[a].Key < stats.TopCode[b].Key
	})
	if len(stats.TopCode) > topCodes {
		stats.TopCode = stats.TopCode[:topCodes]
	}
	return stats
}
