package board

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

// rawTask tolerates the field variants backends have shipped over time:
// "_id" vs "id", label names under "tags" vs identifiers under "labelIds",
// and free-form status spellings.
type rawTask struct {
	ID          string   `json:"id"`
	AltID       string   `json:"_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Assignee    string   `json:"assignee"`
	DueDate     string   `json:"dueDate"`
	Tags        []string `json:"tags"`
	LabelIDs    []string `json:"labelIds"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	Order       int      `json:"order"`
}

// Normalize maps a server task payload onto the three columns. The payload
// may be wrapped in "kanban" or "data" envelopes (checked in that order, any
// nesting depth) or be the bare status-group object. Status keys tolerate
// spelling variants; groups with unknown status are dropped. Task label
// names are resolved against the board's label set; unknown names are
// dropped, never an error. Normalizing already-normalized output is a no-op.
func Normalize(raw []byte, labels []domain.Label, logger *log.Logger) (ColumnSet, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	groups, err := unwrapGroups(raw)
	if err != nil {
		return ColumnSet{}, err
	}

	byName := make(map[string]string, len(labels))
	byID := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		byName[strings.ToLower(l.Name)] = l.ID
		byID[l.ID] = struct{}{}
	}

	var cols ColumnSet
	for key, data := range groups {
		col, ok := domain.ColumnForStatus(key)
		if !ok {
			logger.WithField("status", key).Debug("dropping unknown status group")
			continue
		}
		var raws []rawTask
		if err := sonic.Unmarshal(data, &raws); err != nil {
			return ColumnSet{}, err
		}
		tasks := cols.Tasks(col)
		for _, rt := range raws {
			tasks = append(tasks, materialize(rt, col, byName, byID, logger))
		}
		cols.setTasks(col, tasks)
	}

	for _, col := range domain.Columns() {
		tasks := cols.Tasks(col)
		sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Order < tasks[j].Order })
	}
	return cols, nil
}

// unwrapGroups peels "kanban"/"data" envelopes until it reaches the
// status-group object.
func unwrapGroups(raw []byte) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := sonic.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	return unwrapEnvelope(obj)
}

func unwrapEnvelope(obj map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	for _, wrapper := range []string{"kanban", "data"} {
		inner, ok := obj[wrapper]
		if !ok {
			continue
		}
		var nested map[string]json.RawMessage
		if err := sonic.Unmarshal(inner, &nested); err != nil {
			continue
		}
		return unwrapEnvelope(nested)
	}
	return pruneNonGroups(obj), nil
}

// pruneNonGroups drops scalar bookkeeping keys ("success", "count") so only
// candidate status groups remain.
func pruneNonGroups(obj map[string]json.RawMessage) map[string]json.RawMessage {
	groups := make(map[string]json.RawMessage, len(obj))
	for k, v := range obj {
		trimmed := strings.TrimSpace(string(v))
		if strings.HasPrefix(trimmed, "[") {
			groups[k] = v
		}
	}
	return groups
}

func materialize(rt rawTask, col domain.Column, byName map[string]string, byID map[string]struct{}, logger *log.Logger) domain.Task {
	id := rt.ID
	if id == "" {
		id = rt.AltID
	}

	status := col.Status()
	if rt.Status != "" {
		if c, ok := domain.ColumnForStatus(rt.Status); ok && c == col {
			status = c.Status()
		}
	}

	var due *time.Time
	if rt.DueDate != "" {
		if ts, err := time.Parse(time.RFC3339, rt.DueDate); err == nil {
			due = &ts
		}
	}

	var labelIDs []string
	seen := make(map[string]struct{})
	keep := func(id string) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		labelIDs = append(labelIDs, id)
	}
	for _, lid := range rt.LabelIDs {
		if _, ok := byID[lid]; ok {
			keep(lid)
		} else {
			logger.WithFields(log.Fields{"task": id, "label": lid}).Debug("dropping unknown label id")
		}
	}
	for _, name := range rt.Tags {
		if lid, ok := byName[strings.ToLower(name)]; ok {
			keep(lid)
		} else {
			logger.WithFields(log.Fields{"task": id, "label": name}).Debug("dropping unknown label name")
		}
	}

	priority := domain.Priority(rt.Priority)
	if !priority.Valid() {
		priority = ""
	}

	return domain.Task{
		ID:          id,
		Title:       rt.Title,
		Description: rt.Description,
		Assignee:    rt.Assignee,
		DueDate:     due,
		LabelIDs:    labelIDs,
		Priority:    priority,
		Status:      status,
		Order:       rt.Order,
	}
}
