package gasdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Revenue summarizes one day of orders.
type Revenue struct {
	Date      time.Time
	Orders    int
	Pending   int
	Completed int
	Amount    float64
}

// TodayRevenue totals the orders placed on the Taipei calendar day of now.
func (d *DB) TodayRevenue(ctx context.Context, now time.Time) (Revenue, error) {
	start, end := dayBounds(now)
	rev := Revenue{Date: start}
	err := d.db.QueryRowContext(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE "status" = 'pending'),
		       count(*) FILTER (WHERE "status" = 'completed'),
		       COALESCE(sum("total"), 0)::float8
		FROM "GasOrder"
		WHERE "orderDate" >= $1 AND "orderDate" < $2`,
		start, end).Scan(&rev.Orders, &rev.Pending, &rev.Completed, &rev.Amount)
	if err != nil {
		return Revenue{}, fmt.Errorf("query revenue: %w", err)
	}
	return rev, nil
}

// Order is a pending order line for the boss view.
type Order struct {
	No       string
	Customer string
	Amount   float64
	Status   string
	Date     time.Time
}

// PendingOrders returns every pending order, newest first.
func (d *DB) PendingOrders(ctx context.Context) ([]Order, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT o."orderNo", COALESCE(c."name", ''), o."total"::float8, o."status", o."orderDate"
		FROM "GasOrder" o
		LEFT JOIN "Customer" c ON c."id" = o."customerId"
		WHERE o."status" = 'pending'
		ORDER BY o."orderDate" DESC`)
	if err != nil {
		return nil, fmt.Errorf("query pending orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.No, &o.Customer, &o.Amount, &o.Status, &o.Date); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Customer is a customer search hit.
type Customer struct {
	Name        string
	Phone       string
	Address     string
	PaymentType string
}

// SearchCustomers matches kw against name, phone and address.
func (d *DB) SearchCustomers(ctx context.Context, kw string, limit int) ([]Customer, error) {
	kw = strings.TrimSpace(kw)
	if kw == "" {
		return nil, nil
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT "name", COALESCE("phone", ''), COALESCE("address", ''), COALESCE("paymentType", '')
		FROM "Customer"
		WHERE "name" ILIKE $1 OR "phone" ILIKE $1 OR "address" ILIKE $1
		ORDER BY "name"
		LIMIT $2`,
		"%"+escapeLike(kw)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search customers: %w", err)
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.Name, &c.Phone, &c.Address, &c.PaymentType); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// StockItem is a product at or below its minimum stock.
type StockItem struct {
	Product  string
	Quantity int
	MinStock int
}

// LowInventory lists products whose quantity is at or below minStock.
func (d *DB) LowInventory(ctx context.Context) ([]StockItem, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT p."name", i."quantity", i."minStock"
		FROM "Inventory" i
		JOIN "Product" p ON p."id" = i."productId"
		WHERE i."quantity" <= i."minStock"
		ORDER BY i."quantity", p."name"`)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	var out []StockItem
	for rows.Next() {
		var s StockItem
		if err := rows.Scan(&s.Product, &s.Quantity, &s.MinStock); err != nil {
			return nil, fmt.Errorf("scan stock item: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Product is an active product.
type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Code     string  `json:"code"`
	Price    float64 `json:"price"`
	Unit     string  `json:"unit"`
	Capacity string  `json:"capacity,omitempty"`
	Station  string  `json:"station,omitempty"`
}

// Products lists active products by code.
func (d *DB) Products(ctx context.Context) ([]Product, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT "id", "name", "code", "price"::float8, "unit", COALESCE("capacity", '')
		FROM "Product"
		WHERE "isActive" = true
		ORDER BY "code"`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Code, &p.Price, &p.Unit, &p.Capacity); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Station = stationForCode(p.Code)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MessageLog is one handled LINE exchange.
type MessageLog struct {
	UserID   string
	GroupID  string
	Type     string
	Content  string
	Response string
	Intent   string
}

// LogMessage stores m in "LineMessage".
func (d *DB) LogMessage(ctx context.Context, m MessageLog) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO "LineMessage" ("id", "lineGroupId", "userId", "messageType", "content", "response", "intent", "timestamp")
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), now())`,
		uuid.NewString(), m.GroupID, m.UserID, m.Type, m.Content, m.Response, m.Intent)
	if err != nil {
		return fmt.Errorf("log message: %w", err)
	}
	return nil
}
