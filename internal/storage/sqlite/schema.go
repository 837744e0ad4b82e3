package sqlite

// schema is the DDL executed once on Open. Idempotent via IF NOT EXISTS.
//
// Conventions: UUIDs and timestamps are TEXT (RFC3339, the SQLite idiom),
// money columns are INTEGER minor units, JSON snapshots are TEXT. The two
// append-only tables (order_status_history, shipment_events) and the webhook
// log are never updated in place except for the webhook processing flags.
const schema = `
CREATE TABLE IF NOT EXISTS artworks (
    id              TEXT    PRIMARY KEY,
    title           TEXT    NOT NULL,
    artist_name     TEXT    NOT NULL,
    price           INTEGER NOT NULL,
    currency        TEXT    NOT NULL,
    status          TEXT    NOT NULL DEFAULT 'active',
    stock_quantity  INTEGER NOT NULL DEFAULT 1,
    created_at      TEXT    NOT NULL,
    updated_at      TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS carts (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL UNIQUE,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cart_items (
    cart_id     TEXT    NOT NULL REFERENCES carts(id),
    artwork_id  TEXT    NOT NULL REFERENCES artworks(id),
    quantity    INTEGER NOT NULL CHECK (quantity >= 1),
    unit_price  INTEGER NOT NULL,
    currency    TEXT    NOT NULL,
    created_at  TEXT    NOT NULL,
    updated_at  TEXT    NOT NULL,
    PRIMARY KEY (cart_id, artwork_id)
);

-- Year-scoped order number allocator. Always bumped with a single
-- INSERT .. ON CONFLICT .. RETURNING, never read-then-write.
CREATE TABLE IF NOT EXISTS order_sequences (
    year      INTEGER PRIMARY KEY,
    last_seq  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
    id                  TEXT    PRIMARY KEY,
    order_number        TEXT    NOT NULL UNIQUE,
    user_id             TEXT    NOT NULL,
    status              TEXT    NOT NULL DEFAULT 'pending',
    currency            TEXT    NOT NULL,
    subtotal            INTEGER NOT NULL,
    shipping_cost       INTEGER NOT NULL DEFAULT 0,
    tax_amount          INTEGER NOT NULL DEFAULT 0,
    discount_amount     INTEGER NOT NULL DEFAULT 0,
    total_amount        INTEGER NOT NULL,
    shipping_address    TEXT    NOT NULL,
    billing_address     TEXT    NOT NULL,
    shipping_method_id  TEXT    NOT NULL,
    customer_notes      TEXT    NOT NULL DEFAULT '',
    created_at          TEXT    NOT NULL,
    updated_at          TEXT    NOT NULL,
    shipped_at          TEXT,
    delivered_at        TEXT,
    -- total = subtotal + shipping + tax - discount, enforced at the door too
    CHECK (total_amount = subtotal + shipping_cost + tax_amount - discount_amount)
);

CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders(user_id, status);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

CREATE TABLE IF NOT EXISTS order_items (
    id          TEXT    PRIMARY KEY,
    order_id    TEXT    NOT NULL REFERENCES orders(id),
    artwork_id  TEXT    NOT NULL,
    quantity    INTEGER NOT NULL CHECK (quantity >= 1),
    unit_price  INTEGER NOT NULL,
    tax_rate    INTEGER NOT NULL DEFAULT 0,
    snapshot    TEXT    NOT NULL,
    created_at  TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);

-- Append-only audit trail of every status change. Rows are never edited.
CREATE TABLE IF NOT EXISTS order_status_history (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id    TEXT NOT NULL REFERENCES orders(id),
    old_status  TEXT NOT NULL DEFAULT '',
    new_status  TEXT NOT NULL,
    actor       TEXT NOT NULL DEFAULT '',
    note        TEXT NOT NULL DEFAULT '',
    changed_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_order ON order_status_history(order_id, changed_at);

CREATE TABLE IF NOT EXISTS payments (
    id              TEXT    PRIMARY KEY,
    order_id        TEXT    NOT NULL UNIQUE REFERENCES orders(id),
    provider        TEXT    NOT NULL,
    method          TEXT    NOT NULL,
    provider_ref    TEXT    UNIQUE,
    amount          INTEGER NOT NULL,
    currency        TEXT    NOT NULL,
    status          TEXT    NOT NULL DEFAULT 'pending',
    failure_reason  TEXT    NOT NULL DEFAULT '',
    failure_code    TEXT    NOT NULL DEFAULT '',
    provider_data   TEXT    NOT NULL DEFAULT '{}',
    created_at      TEXT    NOT NULL,
    updated_at      TEXT    NOT NULL,
    processed_at    TEXT
);

CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status);

-- Append-only provider callback log. event_id is provider-assigned and
-- unique: the idempotency anchor for at-least-once webhook delivery.
CREATE TABLE IF NOT EXISTS payment_webhooks (
    id                    INTEGER PRIMARY KEY AUTOINCREMENT,
    provider              TEXT    NOT NULL,
    event_id              TEXT    NOT NULL UNIQUE,
    event_type            TEXT    NOT NULL,
    raw_data              TEXT    NOT NULL,
    payment_id            TEXT,
    processed             INTEGER NOT NULL DEFAULT 0,
    processing_attempts   INTEGER NOT NULL DEFAULT 0,
    last_processing_error TEXT    NOT NULL DEFAULT '',
    created_at            TEXT    NOT NULL,
    processed_at          TEXT
);

CREATE INDEX IF NOT EXISTS idx_webhooks_unprocessed ON payment_webhooks(processed, processing_attempts);

CREATE TABLE IF NOT EXISTS refunds (
    id            TEXT    PRIMARY KEY,
    order_id      TEXT    NOT NULL REFERENCES orders(id),
    refund_type   TEXT    NOT NULL,
    amount        INTEGER NOT NULL,
    currency      TEXT    NOT NULL,
    reason        TEXT    NOT NULL DEFAULT '',
    status        TEXT    NOT NULL DEFAULT 'pending',
    processed_by  TEXT    NOT NULL DEFAULT '',
    processed_at  TEXT,
    created_at    TEXT    NOT NULL,
    updated_at    TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS payment_refunds (
    id                  TEXT    PRIMARY KEY,
    payment_id          TEXT    NOT NULL REFERENCES payments(id),
    refund_id           TEXT    NOT NULL UNIQUE REFERENCES refunds(id),
    amount              INTEGER NOT NULL,
    currency            TEXT    NOT NULL,
    provider_refund_id  TEXT    NOT NULL DEFAULT '',
    status              TEXT    NOT NULL DEFAULT 'pending',
    failure_reason      TEXT    NOT NULL DEFAULT '',
    created_at          TEXT    NOT NULL,
    updated_at          TEXT    NOT NULL,
    processed_at        TEXT
);

CREATE TABLE IF NOT EXISTS shipping_methods (
    id                   TEXT    PRIMARY KEY,
    name                 TEXT    NOT NULL,
    description          TEXT    NOT NULL DEFAULT '',
    carrier              TEXT    NOT NULL,
    base_cost            INTEGER NOT NULL,
    cost_per_kg          INTEGER NOT NULL DEFAULT 0,
    currency             TEXT    NOT NULL,
    min_delivery_days    INTEGER NOT NULL DEFAULT 1,
    max_delivery_days    INTEGER NOT NULL DEFAULT 7,
    max_weight_kg        TEXT    NOT NULL DEFAULT '0',
    domestic_only        INTEGER NOT NULL DEFAULT 1,
    supported_countries  TEXT    NOT NULL DEFAULT '[]',
    is_active            INTEGER NOT NULL DEFAULT 1,
    created_at           TEXT    NOT NULL,
    updated_at           TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS shipments (
    id               TEXT    PRIMARY KEY,
    order_id         TEXT    NOT NULL UNIQUE REFERENCES orders(id),
    method_id        TEXT    NOT NULL REFERENCES shipping_methods(id),
    carrier          TEXT    NOT NULL,
    tracking_number  TEXT    NOT NULL UNIQUE,
    weight_kg        TEXT    NOT NULL,
    declared_value   INTEGER NOT NULL DEFAULT 0,
    shipping_cost    INTEGER NOT NULL DEFAULT 0,
    currency         TEXT    NOT NULL,
    from_address     TEXT    NOT NULL,
    to_address       TEXT    NOT NULL,
    status           TEXT    NOT NULL DEFAULT 'pending',
    created_at       TEXT    NOT NULL,
    updated_at       TEXT    NOT NULL,
    shipped_at       TEXT,
    delivered_at     TEXT
);

CREATE INDEX IF NOT EXISTS idx_shipments_tracking ON shipments(tracking_number);

-- Append-only carrier tracking log. occurred_at is the carrier clock,
-- recorded_at the insert clock; they legitimately differ.
CREATE TABLE IF NOT EXISTS shipment_events (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    shipment_id  TEXT NOT NULL REFERENCES shipments(id),
    event_type   TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    location     TEXT NOT NULL DEFAULT '',
    source       TEXT NOT NULL DEFAULT 'carrier',
    raw_data     TEXT NOT NULL DEFAULT '{}',
    occurred_at  TEXT NOT NULL,
    recorded_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_shipment_events ON shipment_events(shipment_id, occurred_at);
`
