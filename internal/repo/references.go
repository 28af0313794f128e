package repo

import (
	"context"
	"database/sql"

	"tailorline/internal/domain"
)

// Lookups against master data owned by other services. The engine only reads these tables.

func (r Repo) OrderExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM orders WHERE id=?`, id)
}

func (r Repo) exists(ctx context.Context, query string, id int64) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, r.bind(query), id).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	var c domain.Customer
	err := r.DB.QueryRowContext(ctx, r.bind(`SELECT id,name FROM customers WHERE id=?`), id).Scan(&c.ID, &c.Name)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) GetStaff(ctx context.Context, id int64) (domain.Staff, error) {
	var s domain.Staff
	var skill sql.NullString
	err := r.DB.QueryRowContext(ctx, r.bind(`SELECT id,name,skill_level FROM staff WHERE id=?`), id).Scan(&s.ID, &s.Name, &skill)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	s.SkillLevel = skill.String
	return s, err
}

// TemplatesByID loads the templates among ids that exist, in one round trip.
func (r Repo) TemplatesByID(ctx context.Context, ids []int64) (map[int64]domain.Template, error) {
	res := make(map[int64]domain.Template, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	rows, err := r.DB.QueryContext(ctx, r.bind(`SELECT id,title,description FROM workflow_templates WHERE id IN (`+placeholders(len(ids))+`)`), int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var t domain.Template
		var desc sql.NullString
		if err := rows.Scan(&t.ID, &t.Title, &desc); err != nil {
			return nil, err
		}
		t.Description = desc.String
		res[t.ID] = t
	}
	return res, rows.Err()
}

func (r Repo) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,title,description FROM workflow_templates ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Template{}
	for rows.Next() {
		var t domain.Template
		var desc sql.NullString
		if err := rows.Scan(&t.ID, &t.Title, &desc); err != nil {
			return nil, err
		}
		t.Description = desc.String
		res = append(res, t)
	}
	return res, rows.Err()
}

// CustomOrderItems returns the custom line items of an order with their measurements.
func (r Repo) CustomOrderItems(ctx context.Context, orderID int64) ([]domain.CustomOrderItem, error) {
	rows, err := r.DB.QueryContext(ctx, r.bind(`SELECT id,order_id,garment_type,fabric,quantity,notes FROM custom_order_items WHERE order_id=? ORDER BY id`), orderID)
	if err != nil {
		return nil, err
	}
	items := []domain.CustomOrderItem{}
	index := map[int64]int{}
	for rows.Next() {
		var it domain.CustomOrderItem
		var fabric, notes sql.NullString
		if err := rows.Scan(&it.ID, &it.OrderID, &it.GarmentType, &fabric, &it.Quantity, &notes); err != nil {
			rows.Close()
			return nil, err
		}
		it.Fabric = fabric.String
		it.Notes = notes.String
		it.Measurements = []domain.Measurement{}
		index[it.ID] = len(items)
		items = append(items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return items, nil
	}
	mrows, err := r.DB.QueryContext(ctx, r.bind(`SELECT m.id,m.item_id,m.name,m.value,m.unit FROM measurements m
JOIN custom_order_items i ON i.id=m.item_id WHERE i.order_id=? ORDER BY m.item_id, m.id`), orderID)
	if err != nil {
		return nil, err
	}
	defer mrows.Close()
	for mrows.Next() {
		var m domain.Measurement
		var unit sql.NullString
		if err := mrows.Scan(&m.ID, &m.ItemID, &m.Name, &m.Value, &unit); err != nil {
			return nil, err
		}
		m.Unit = unit.String
		if i, ok := index[m.ItemID]; ok {
			items[i].Measurements = append(items[i].Measurements, m)
		}
	}
	return items, mrows.Err()
}
