package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/safaricrafts/order-core/internal/money"
	"github.com/safaricrafts/order-core/internal/shipping"
)

const methodColumns = `
	id, name, description, carrier, base_cost, cost_per_kg, currency,
	min_delivery_days, max_delivery_days, max_weight_kg,
	domestic_only, supported_countries, is_active`

func scanMethod(row rowScanner) (shipping.Method, error) {
	var (
		m             shipping.Method
		baseCost      int64
		costPerKg     int64
		currency      string
		maxWeight     string
		domesticOnly  int
		countriesJSON string
		isActive      int
	)
	err := row.Scan(
		&m.ID, &m.Name, &m.Description, &m.Carrier, &baseCost, &costPerKg, &currency,
		&m.MinDeliveryDays, &m.MaxDeliveryDays, &maxWeight,
		&domesticOnly, &countriesJSON, &isActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return shipping.Method{}, shipping.ErrMethodNotFound
	}
	if err != nil {
		return shipping.Method{}, fmt.Errorf("sqlite: scan shipping method: %w", err)
	}

	m.BaseCost = money.New(currency, baseCost)
	m.CostPerKg = money.New(currency, costPerKg)
	if m.MaxWeightKg, err = decimal.NewFromString(maxWeight); err != nil {
		return shipping.Method{}, fmt.Errorf("sqlite: parse max weight %q: %w", maxWeight, err)
	}
	m.DomesticOnly = domesticOnly != 0
	m.IsActive = isActive != 0
	if err := json.Unmarshal([]byte(countriesJSON), &m.SupportedCountries); err != nil {
		return shipping.Method{}, fmt.Errorf("sqlite: decode supported countries: %w", err)
	}
	return m, nil
}

func (s *Store) Method(ctx context.Context, id string) (shipping.Method, error) {
	q := `SELECT ` + methodColumns + ` FROM shipping_methods WHERE id = ?`
	return scanMethod(s.db.QueryRowContext(ctx, q, id))
}

func (s *Store) ActiveMethods(ctx context.Context) ([]shipping.Method, error) {
	q := `SELECT ` + methodColumns + ` FROM shipping_methods WHERE is_active = 1 ORDER BY base_cost`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list shipping methods: %w", err)
	}
	defer rows.Close()

	var methods []shipping.Method
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

// CreateShippingMethod seeds a rate card row. Used by fixtures and the demo
// seeder.
func (s *Store) CreateShippingMethod(ctx context.Context, m shipping.Method) (shipping.Method, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.SupportedCountries == nil {
		m.SupportedCountries = []string{}
	}
	countriesJSON, err := json.Marshal(m.SupportedCountries)
	if err != nil {
		return shipping.Method{}, fmt.Errorf("encode supported countries: %w", err)
	}
	now := formatTime(time.Now())

	const q = `
		INSERT INTO shipping_methods (
			id, name, description, carrier, base_cost, cost_per_kg, currency,
			min_delivery_days, max_delivery_days, max_weight_kg,
			domestic_only, supported_countries, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q,
		m.ID, m.Name, m.Description, m.Carrier, m.BaseCost.Amount, m.CostPerKg.Amount, m.BaseCost.Currency,
		m.MinDeliveryDays, m.MaxDeliveryDays, m.MaxWeightKg.String(),
		boolInt(m.DomesticOnly), string(countriesJSON), boolInt(m.IsActive), now, now,
	)
	if err != nil {
		return shipping.Method{}, fmt.Errorf("sqlite: insert shipping method: %w", err)
	}
	return m, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const shipmentColumns = `
	id, order_id, method_id, carrier, tracking_number, weight_kg,
	declared_value, shipping_cost, currency, from_address, to_address, status,
	created_at, updated_at, shipped_at, delivered_at`

func scanShipment(row rowScanner) (shipping.Shipment, error) {
	var (
		sh                   shipping.Shipment
		weight               string
		declaredValue        int64
		shippingCost         int64
		currency             string
		fromJSON, toJSON     string
		status               string
		createdAt, updatedAt string
		shippedAt            sql.NullString
		deliveredAt          sql.NullString
	)
	err := row.Scan(
		&sh.ID, &sh.OrderID, &sh.MethodID, &sh.Carrier, &sh.TrackingNumber, &weight,
		&declaredValue, &shippingCost, &currency, &fromJSON, &toJSON, &status,
		&createdAt, &updatedAt, &shippedAt, &deliveredAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return shipping.Shipment{}, shipping.ErrShipmentNotFound
	}
	if err != nil {
		return shipping.Shipment{}, fmt.Errorf("sqlite: scan shipment: %w", err)
	}

	if sh.WeightKg, err = decimal.NewFromString(weight); err != nil {
		return shipping.Shipment{}, fmt.Errorf("sqlite: parse shipment weight %q: %w", weight, err)
	}
	sh.DeclaredValue = money.New(currency, declaredValue)
	sh.ShippingCost = money.New(currency, shippingCost)
	if err := json.Unmarshal([]byte(fromJSON), &sh.FromAddress); err != nil {
		return shipping.Shipment{}, fmt.Errorf("sqlite: decode from address: %w", err)
	}
	if err := json.Unmarshal([]byte(toJSON), &sh.ToAddress); err != nil {
		return shipping.Shipment{}, fmt.Errorf("sqlite: decode to address: %w", err)
	}
	sh.Status = shipping.ShipmentStatus(status)
	if sh.CreatedAt, err = parseTime(createdAt); err != nil {
		return shipping.Shipment{}, err
	}
	if sh.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return shipping.Shipment{}, err
	}
	if sh.ShippedAt, err = parseNullTime(shippedAt); err != nil {
		return shipping.Shipment{}, err
	}
	if sh.DeliveredAt, err = parseNullTime(deliveredAt); err != nil {
		return shipping.Shipment{}, err
	}
	return sh, nil
}

// CreateShipment inserts the shipment. order_id is unique: the second
// shipment for an order loses with ErrShipmentExists.
func (s *Store) CreateShipment(ctx context.Context, sh shipping.Shipment) (shipping.Shipment, error) {
	now := time.Now()
	sh.ID = uuid.NewString()
	sh.CreatedAt = now
	sh.UpdatedAt = now

	fromJSON, err := json.Marshal(sh.FromAddress)
	if err != nil {
		return shipping.Shipment{}, fmt.Errorf("encode from address: %w", err)
	}
	toJSON, err := json.Marshal(sh.ToAddress)
	if err != nil {
		return shipping.Shipment{}, fmt.Errorf("encode to address: %w", err)
	}

	const q = `
		INSERT INTO shipments (
			id, order_id, method_id, carrier, tracking_number, weight_kg,
			declared_value, shipping_cost, currency, from_address, to_address, status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	nowStr := formatTime(now)
	_, err = s.db.ExecContext(ctx, q,
		sh.ID, sh.OrderID, sh.MethodID, sh.Carrier, sh.TrackingNumber, sh.WeightKg.String(),
		sh.DeclaredValue.Amount, sh.ShippingCost.Amount, sh.ShippingCost.Currency,
		string(fromJSON), string(toJSON), string(sh.Status), nowStr, nowStr,
	)
	if isUniqueViolation(err) {
		return shipping.Shipment{}, shipping.ErrShipmentExists
	}
	if err != nil {
		return shipping.Shipment{}, fmt.Errorf("sqlite: insert shipment: %w", err)
	}
	return sh, nil
}

func (s *Store) ShipmentByTracking(ctx context.Context, trackingNumber string) (shipping.Shipment, error) {
	q := `SELECT ` + shipmentColumns + ` FROM shipments WHERE tracking_number = ?`
	return scanShipment(s.db.QueryRowContext(ctx, q, trackingNumber))
}

func (s *Store) ShipmentByOrderID(ctx context.Context, orderID string) (shipping.Shipment, error) {
	q := `SELECT ` + shipmentColumns + ` FROM shipments WHERE order_id = ?`
	return scanShipment(s.db.QueryRowContext(ctx, q, orderID))
}

// AppendEvent writes the tracking event and the shipment status change in
// one transaction. shipped_at and delivered_at stamp on first reach only.
func (s *Store) AppendEvent(ctx context.Context, shipmentID string, ev shipping.Event, next shipping.ShipmentStatus) (shipping.Event, error) {
	now := time.Now()
	nowStr := formatTime(now)

	ev.ShipmentID = shipmentID
	ev.RecordedAt = now
	raw := ev.RawData
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}

	err := s.execTx(ctx, func(tx *sql.Tx) error {
		const insEvent = `
			INSERT INTO shipment_events (shipment_id, event_type, description, location, source, raw_data, occurred_at, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		res, err := tx.ExecContext(ctx, insEvent,
			shipmentID, ev.EventType, ev.Description, ev.Location, ev.Source,
			string(raw), formatTime(ev.OccurredAt), nowStr,
		)
		if err != nil {
			return fmt.Errorf("sqlite: insert shipment event: %w", err)
		}
		if ev.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("sqlite: shipment event row id: %w", err)
		}

		set := `status = ?, updated_at = ?`
		args := []any{string(next), nowStr}
		switch next {
		case shipping.ShipmentPickedUp, shipping.ShipmentInTransit:
			set += `, shipped_at = COALESCE(shipped_at, ?)`
			args = append(args, nowStr)
		case shipping.ShipmentDelivered:
			set += `, delivered_at = COALESCE(delivered_at, ?)`
			args = append(args, nowStr)
		}
		args = append(args, shipmentID)

		res, err = tx.ExecContext(ctx, `UPDATE shipments SET `+set+` WHERE id = ?`, args...)
		if err != nil {
			return fmt.Errorf("sqlite: update shipment status: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return shipping.ErrShipmentNotFound
		}
		return nil
	})
	if err != nil {
		return shipping.Event{}, err
	}
	return ev, nil
}

// Events returns the tracking log in carrier time order.
func (s *Store) Events(ctx context.Context, shipmentID string) ([]shipping.Event, error) {
	const q = `
		SELECT id, shipment_id, event_type, description, location, source, raw_data, occurred_at, recorded_at
		FROM   shipment_events
		WHERE  shipment_id = ?
		ORDER  BY occurred_at, id`

	rows, err := s.db.QueryContext(ctx, q, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list shipment events: %w", err)
	}
	defer rows.Close()

	var events []shipping.Event
	for rows.Next() {
		var (
			ev         shipping.Event
			rawData    string
			occurredAt string
			recordedAt string
		)
		if err := rows.Scan(&ev.ID, &ev.ShipmentID, &ev.EventType, &ev.Description, &ev.Location, &ev.Source, &rawData, &occurredAt, &recordedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan shipment event: %w", err)
		}
		ev.RawData = json.RawMessage(rawData)
		if ev.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, err
		}
		if ev.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
