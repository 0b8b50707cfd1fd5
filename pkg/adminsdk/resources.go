package adminsdk

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
)

// ReservationStatuses are the states a reservation can be moved to.
var ReservationStatuses = []string{"pending", "confirmed", "cancelled", "completed"}

func pageQuery(page, perPage int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}
	return q
}

// ListPage fetches one page of an entity collection.
func (c *Client) ListPage(ctx context.Context, entity EntityType, page, perPage int) (*PageResult, error) {
	return c.listPage(ctx, entity, page, perPage, RequestOptions{Caller: "list:" + string(entity)})
}

func (c *Client) listPage(ctx context.Context, entity EntityType, page, perPage int, opts RequestOptions) (*PageResult, error) {
	if !entity.Valid() {
		return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("unknown entity type %q", entity)}
	}

	opts.Query = pageQuery(page, perPage)
	payload, err := c.Get(ctx, entity.Path(), opts)
	if err != nil {
		return nil, err
	}
	if payload.Kind != PayloadJSON {
		return nil, &Error{Kind: KindDecode, Message: "list response is not JSON"}
	}

	return NormalizePage(payload.JSON, entity.CollectionKey(), page, perPage)
}

// BulkLister serves full-dataset loads. It bypasses the interactive limiter;
// the dataset cache applies its own.
type BulkLister struct {
	Client *Client
}

func (b BulkLister) ListPage(ctx context.Context, entity EntityType, page, perPage int) (*PageResult, error) {
	return b.Client.listPage(ctx, entity, page, perPage, RequestOptions{
		SkipRateLimit: true,
		Caller:        "dataset:" + string(entity),
	})
}

// GetRecord fetches a single record. A missing record is (nil, nil).
func (c *Client) GetRecord(ctx context.Context, entity EntityType, id string) (Record, error) {
	if !entity.Valid() {
		return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("unknown entity type %q", entity)}
	}

	payload, err := c.Get(ctx, entity.RecordPath(url.PathEscape(id)), RequestOptions{})
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return unwrapRecord(payload, string(entity))
}

// CreateRecord creates a record and invalidates the entity's dataset.
func (c *Client) CreateRecord(ctx context.Context, entity EntityType, fields map[string]any) (Record, error) {
	if !entity.Valid() {
		return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("unknown entity type %q", entity)}
	}

	payload, err := c.Post(ctx, entity.Path(), fields, RequestOptions{})
	if err != nil {
		return nil, err
	}
	c.mutated(entity)
	return unwrapRecord(payload, string(entity))
}

// UpdateRecord replaces fields of a record and invalidates the dataset.
func (c *Client) UpdateRecord(ctx context.Context, entity EntityType, id string, fields map[string]any) (Record, error) {
	if !entity.Valid() {
		return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("unknown entity type %q", entity)}
	}

	payload, err := c.Put(ctx, entity.RecordPath(url.PathEscape(id)), fields, RequestOptions{})
	if err != nil {
		return nil, err
	}
	c.mutated(entity)
	return unwrapRecord(payload, string(entity))
}

// DeleteRecord deletes a record and invalidates the dataset.
func (c *Client) DeleteRecord(ctx context.Context, entity EntityType, id string) error {
	if !entity.Valid() {
		return &Error{Kind: KindValidation, Message: fmt.Sprintf("unknown entity type %q", entity)}
	}

	if _, err := c.Delete(ctx, entity.RecordPath(url.PathEscape(id)), RequestOptions{}); err != nil {
		return err
	}
	c.mutated(entity)
	return nil
}

// ListSpecializations returns every doctor specialization.
func (c *Client) ListSpecializations(ctx context.Context) ([]Record, error) {
	payload, err := c.Get(ctx, "/admin/specializations", RequestOptions{Caller: "list:specialization"})
	if err != nil {
		return nil, err
	}
	if payload.Kind != PayloadJSON {
		return nil, &Error{Kind: KindDecode, Message: "specializations response is not JSON"}
	}

	page, err := NormalizePage(payload.JSON, "specializations", 1, 0)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// ListReservations fetches one page of reservations.
func (c *Client) ListReservations(ctx context.Context, page, perPage int) (*PageResult, error) {
	payload, err := c.Get(ctx, "/admin/reservations", RequestOptions{
		Caller: "list:reservation",
		Query:  pageQuery(page, perPage),
	})
	if err != nil {
		return nil, err
	}
	if payload.Kind != PayloadJSON {
		return nil, &Error{Kind: KindDecode, Message: "reservations response is not JSON"}
	}
	return NormalizePage(payload.JSON, "reservations", page, perPage)
}

// UpdateReservationStatus moves a reservation to status.
func (c *Client) UpdateReservationStatus(ctx context.Context, id, status string) (Record, error) {
	if !slices.Contains(ReservationStatuses, status) {
		return nil, &Error{
			Kind:    KindValidation,
			Message: fmt.Sprintf("invalid reservation status %q", status),
			Fields:  map[string][]string{"status": {"must be one of pending, confirmed, cancelled, completed"}},
		}
	}

	path := "/admin/reservations/" + url.PathEscape(id) + "/status"
	payload, err := c.Patch(ctx, path, map[string]string{"status": status}, RequestOptions{})
	if err != nil {
		return nil, err
	}
	return unwrapRecord(payload, "reservation")
}

// unwrapRecord accepts {"data": {...}}, {"<singular>": {...}} or a bare
// object. Empty bodies yield an empty record.
func unwrapRecord(p *Payload, singular string) (Record, error) {
	if p.Kind == PayloadEmpty {
		return Record{}, nil
	}

	var doc map[string]any
	if err := p.Decode(&doc); err != nil {
		return nil, err
	}

	for _, key := range []string{"data", singular} {
		if inner, ok := doc[key].(map[string]any); ok {
			return Record(inner), nil
		}
	}
	return Record(doc), nil
}
