package core

import (
	"log"
	"sort"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
)

const findMaxResults = 16

// handleFind fuzzy-matches the query against bluetooth device names and
// Wi-Fi SSIDs across whichever services are enabled.
func (s *IPCServer) handleFind(req Request) Response {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return errorResponse("find requires a query")
	}

	type candidate struct {
		kind   string
		target string
		name   string
	}

	var candidates []candidate

	if svc := s.app.bluetoothSvc; svc != nil {
		for _, dev := range svc.Store().Current().Items {
			candidates = append(candidates, candidate{kind: "bluetooth", target: dev.MAC, name: dev.Name})
		}
	}
	if svc := s.app.networkSvc; svc != nil {
		for _, nw := range svc.Store().Current().Items {
			candidates = append(candidates, candidate{kind: "network", target: nw.SSID, name: nw.SSID})
		}
	}

	findStart := time.Now()
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.name
	}

	matches := fuzzy.Find(query, names)
	log.Printf("[IPC] Fuzzy find for query=%q against %d candidates returned %d matches in %v",
		query, len(candidates), len(matches), time.Since(findStart))

	// Exact prefix matches first, then by fuzzy score.
	sort.SliceStable(matches, func(i, j int) bool {
		iPrefix := strings.HasPrefix(strings.ToLower(matches[i].Str), strings.ToLower(query))
		jPrefix := strings.HasPrefix(strings.ToLower(matches[j].Str), strings.ToLower(query))
		if iPrefix != jPrefix {
			return iPrefix
		}
		return matches[i].Score > matches[j].Score
	})

	results := make([]FindMatch, 0, min(len(matches), findMaxResults))
	for i := 0; i < len(matches) && i < findMaxResults; i++ {
		c := candidates[matches[i].Index]
		results = append(results, FindMatch{
			Kind:   c.kind,
			Target: c.target,
			Name:   c.name,
			Score:  matches[i].Score,
		})
	}

	return Response{OK: true, Matches: results}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
