package repo

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tailorline/internal/db"
	"tailorline/internal/domain"
)

// Fixture is reference data loaded into a fresh workspace. In production these
// tables are filled by the order, CRM and staffing services.
type Fixture struct {
	Orders    []domain.Order           `yaml:"orders"`
	Customers []domain.Customer        `yaml:"customers"`
	Staff     []domain.Staff           `yaml:"staff"`
	Templates []domain.Template        `yaml:"templates"`
	Items     []domain.CustomOrderItem `yaml:"items"`
}

func LoadFixture(path string) (Fixture, error) {
	var f Fixture
	data, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("invalid fixture yaml: %w", err)
	}
	return f, nil
}

// Seed upserts fixture rows by id in one transaction.
func (r Repo) Seed(ctx context.Context, f Fixture) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	exec := func(query string, args ...any) error {
		_, err := tx.ExecContext(ctx, r.bind(query), args...)
		return err
	}
	for _, o := range f.Orders {
		if err := exec(`INSERT INTO orders(id,reference) VALUES (?,?) ON CONFLICT(id) DO UPDATE SET reference=excluded.reference`, o.ID, nullable(o.Reference)); err != nil {
			return fmt.Errorf("seed order %d: %w", o.ID, err)
		}
	}
	for _, c := range f.Customers {
		if err := exec(`INSERT INTO customers(id,name) VALUES (?,?) ON CONFLICT(id) DO UPDATE SET name=excluded.name`, c.ID, c.Name); err != nil {
			return fmt.Errorf("seed customer %d: %w", c.ID, err)
		}
	}
	for _, s := range f.Staff {
		if err := exec(`INSERT INTO staff(id,name,skill_level) VALUES (?,?,?) ON CONFLICT(id) DO UPDATE SET name=excluded.name, skill_level=excluded.skill_level`,
			s.ID, s.Name, nullable(s.SkillLevel)); err != nil {
			return fmt.Errorf("seed staff %d: %w", s.ID, err)
		}
	}
	for _, t := range f.Templates {
		if err := exec(`INSERT INTO workflow_templates(id,title,description) VALUES (?,?,?) ON CONFLICT(id) DO UPDATE SET title=excluded.title, description=excluded.description`,
			t.ID, t.Title, nullable(t.Description)); err != nil {
			return fmt.Errorf("seed template %d: %w", t.ID, err)
		}
	}
	for _, it := range f.Items {
		if err := exec(`INSERT INTO custom_order_items(id,order_id,garment_type,fabric,quantity,notes) VALUES (?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET order_id=excluded.order_id, garment_type=excluded.garment_type, fabric=excluded.fabric, quantity=excluded.quantity, notes=excluded.notes`,
			it.ID, it.OrderID, it.GarmentType, nullable(it.Fabric), it.Quantity, nullable(it.Notes)); err != nil {
			return fmt.Errorf("seed item %d: %w", it.ID, err)
		}
		for _, m := range it.Measurements {
			if err := exec(`INSERT INTO measurements(id,item_id,name,value,unit) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET item_id=excluded.item_id, name=excluded.name, value=excluded.value, unit=excluded.unit`,
				m.ID, it.ID, m.Name, m.Value, nullable(m.Unit)); err != nil {
				return fmt.Errorf("seed measurement %d: %w", m.ID, err)
			}
		}
	}
	if r.Dialect == db.Postgres {
		// explicit ids do not advance BIGSERIAL sequences
		for _, table := range []string{"orders", "customers", "staff", "workflow_templates", "custom_order_items", "measurements"} {
			if err := exec(fmt.Sprintf(`SELECT setval(pg_get_serial_sequence('%s','id'), COALESCE((SELECT MAX(id) FROM %s),0)+1, false)`, table, table)); err != nil {
				return fmt.Errorf("advance %s sequence: %w", table, err)
			}
		}
	}
	return tx.Commit()
}
