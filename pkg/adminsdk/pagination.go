package adminsdk

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// PageResult is one page of a collection with its metadata normalized.
type PageResult struct {
	Items       []Record
	CurrentPage int
	LastPage    int
	PerPage     int
	Total       int
}

// pageMeta is what a strategy found; zero values mean absent.
type pageMeta struct {
	currentPage int
	lastPage    int
	perPage     int
	total       int
}

type pageStrategy func(doc map[string]json.RawMessage, key string) ([]Record, pageMeta, bool)

// pageStrategies are tried in order against an object body.
var pageStrategies = []pageStrategy{
	dataArray,
	dataPaginator,
	keyedArray,
	keyedPaginator,
}

// NormalizePage extracts a page from any of the response shapes the API
// uses. key is the collection key (e.g. "doctors"); page and perPage are
// what was requested and fill in missing metadata.
func NormalizePage(body []byte, key string, page, perPage int) (*PageResult, error) {
	trimmed := bytes.TrimSpace(body)

	if len(trimmed) > 0 && trimmed[0] == '[' {
		items, ok := decodeRecords(trimmed)
		if !ok {
			return nil, &Error{Kind: KindDecode, Message: "response array does not hold objects"}
		}
		return finishPage(items, pageMeta{}, page, perPage), nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, &Error{Kind: KindDecode, Message: "response is not a JSON object or array", Err: err}
	}

	for _, strategy := range pageStrategies {
		if items, meta, ok := strategy(doc, key); ok {
			return finishPage(items, meta, page, perPage), nil
		}
	}

	return nil, &Error{Kind: KindDecode, Message: "unrecognised list response shape"}
}

// dataArray: {"data": [...], "current_page": ...} or meta under "meta".
func dataArray(doc map[string]json.RawMessage, _ string) ([]Record, pageMeta, bool) {
	return paginator(doc)
}

// dataPaginator: {"data": {"data": [...], "last_page": ...}}.
func dataPaginator(doc map[string]json.RawMessage, _ string) ([]Record, pageMeta, bool) {
	inner, ok := object(doc["data"])
	if !ok {
		return nil, pageMeta{}, false
	}
	return paginator(inner)
}

// keyedArray: {"doctors": [...]}.
func keyedArray(doc map[string]json.RawMessage, key string) ([]Record, pageMeta, bool) {
	raw, ok := doc[key]
	if !ok {
		return nil, pageMeta{}, false
	}
	items, ok := decodeRecords(raw)
	if !ok {
		return nil, pageMeta{}, false
	}
	return items, readMeta(doc), true
}

// keyedPaginator: {"doctors": {"data": [...], "total": ...}}.
func keyedPaginator(doc map[string]json.RawMessage, key string) ([]Record, pageMeta, bool) {
	inner, ok := object(doc[key])
	if !ok {
		return nil, pageMeta{}, false
	}
	return paginator(inner)
}

// paginator reads a Laravel-style paginator object.
func paginator(obj map[string]json.RawMessage) ([]Record, pageMeta, bool) {
	raw, ok := obj["data"]
	if !ok {
		return nil, pageMeta{}, false
	}
	items, ok := decodeRecords(raw)
	if !ok {
		return nil, pageMeta{}, false
	}

	meta := readMeta(obj)
	if nested, ok := object(obj["meta"]); ok {
		meta = mergeMeta(meta, readMeta(nested))
	}
	return items, meta, true
}

func readMeta(obj map[string]json.RawMessage) pageMeta {
	return pageMeta{
		currentPage: intField(obj, "current_page"),
		lastPage:    intField(obj, "last_page"),
		perPage:     intField(obj, "per_page"),
		total:       intField(obj, "total"),
	}
}

func mergeMeta(a, b pageMeta) pageMeta {
	if a.currentPage == 0 {
		a.currentPage = b.currentPage
	}
	if a.lastPage == 0 {
		a.lastPage = b.lastPage
	}
	if a.perPage == 0 {
		a.perPage = b.perPage
	}
	if a.total == 0 {
		a.total = b.total
	}
	return a
}

// finishPage fills missing metadata from the request and the item count.
func finishPage(items []Record, meta pageMeta, page, perPage int) *PageResult {
	if page < 1 {
		page = 1
	}

	res := &PageResult{
		Items:       items,
		CurrentPage: meta.currentPage,
		LastPage:    meta.lastPage,
		PerPage:     meta.perPage,
		Total:       meta.total,
	}
	if res.Items == nil {
		res.Items = []Record{}
	}
	if res.CurrentPage < 1 {
		res.CurrentPage = page
	}
	if res.PerPage < 1 {
		res.PerPage = perPage
	}
	if res.PerPage < 1 {
		res.PerPage = len(items)
	}

	switch {
	case res.LastPage < 1 && res.Total > 0 && res.PerPage > 0:
		res.LastPage = (res.Total + res.PerPage - 1) / res.PerPage
	case res.LastPage < 1:
		// No pagination metadata: treat the response as the final page.
		res.LastPage = res.CurrentPage
	}
	if res.LastPage < 1 {
		res.LastPage = 1
	}
	if res.Total < 1 && res.LastPage == res.CurrentPage {
		res.Total = (res.CurrentPage-1)*res.PerPage + len(items)
	}

	return res
}

func object(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func decodeRecords(raw json.RawMessage) ([]Record, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var items []Record
	if err := dec.Decode(&items); err != nil {
		return nil, false
	}
	for _, item := range items {
		if item == nil {
			return nil, false
		}
	}
	return items, true
}

// intField reads a number or a numeric string.
func intField(obj map[string]json.RawMessage, name string) int {
	raw, ok := obj[name]
	if !ok {
		return 0
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return int(f)
		}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i
		}
	}
	return 0
}
