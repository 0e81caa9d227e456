package routes

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/synaptica-ai/casereview/pkg/common/apperr"
	"github.com/synaptica-ai/casereview/pkg/common/models"
	"github.com/synaptica-ai/casereview/pkg/extraction"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func pagination(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	skip, limit := 0, defaultPageSize
	if raw := q.Get("skip"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, apperr.NewValidationError("skip", "skip must be a non-negative integer")
		}
		skip = v
	}
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return 0, 0, apperr.NewValidationError("limit", "limit must be a positive integer")
		}
		limit = v
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return skip, limit, nil
}

func (d *Dashboard) handleDonors(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := pagination(r)
	if err != nil {
		d.respondError(w, r, err)
		return
	}
	donors, err := d.client(r).ListDonors(r.Context(), skip, limit)
	if err != nil {
		d.respondError(w, r, err)
		return
	}
	if donors == nil {
		donors = []models.DonorListItem{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": donors,
		"skip":  skip,
		"limit": limit,
	})
}

func (d *Dashboard) handleQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := d.client(r).QueueDetails(r.Context())
	if err != nil {
		d.respondError(w, r, err)
		return
	}
	if queue == nil {
		queue = []models.QueueDonor{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": queue})
}

// StatusCount is one bucket of a breakdown.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

func countBy(values []string) []StatusCount {
	counts := map[string]int{}
	for _, v := range values {
		if v == "" {
			v = "unknown"
		}
		counts[v]++
	}
	out := make([]StatusCount, 0, len(counts))
	for status, n := range counts {
		out = append(out, StatusCount{Status: status, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Status < out[j].Status
	})
	return out
}

// handleDashboard is the admin overview: recent donors and the review queue.
func (d *Dashboard) handleDashboard(w http.ResponseWriter, r *http.Request) {
	api := d.client(r)
	var (
		donors []models.DonorListItem
		queue  []models.QueueDonor
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		donors, err = api.ListDonors(ctx, 0, defaultPageSize)
		return err
	})
	g.Go(func() error {
		var err error
		queue, err = api.QueueDetails(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		d.respondError(w, r, err)
		return
	}

	statuses := make([]string, 0, len(donors))
	for _, donor := range donors {
		statuses = append(statuses, donor.Status)
	}
	processing := make([]string, 0, len(queue))
	critical := 0
	for _, q := range queue {
		processing = append(processing, q.ProcessingStatus)
		if len(q.CriticalFindings) > 0 {
			critical++
		}
	}
	if donors == nil {
		donors = []models.DonorListItem{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"recent_donors":       donors,
		"donor_statuses":      countBy(statuses),
		"queue_length":        len(queue),
		"queue_processing":    countBy(processing),
		"critical_case_count": critical,
	})
}

// handleIntelligence is the medical director landing: queued cases grouped
// by the backend's eligibility verdict, critical findings first.
func (d *Dashboard) handleIntelligence(w http.ResponseWriter, r *http.Request) {
	queue, err := d.client(r).QueueDetails(r.Context())
	if err != nil {
		d.respondError(w, r, err)
		return
	}

	type caseRow struct {
		models.QueueDonor
		Verdict extraction.Verdict `json:"verdict"`
		Summary string             `json:"summary_url"`
	}
	rows := make([]caseRow, 0, len(queue))
	verdicts := make([]string, 0, len(queue))
	for _, q := range queue {
		v := extraction.ClassifyVerdict(q.EligibilityStatus)
		rows = append(rows, caseRow{QueueDonor: q, Verdict: v, Summary: "/summary/" + q.ID.String()})
		verdicts = append(verdicts, string(v))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return len(rows[i].CriticalFindings) > len(rows[j].CriticalFindings)
	})
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"cases":    rows,
		"verdicts": countBy(verdicts),
	})
}
