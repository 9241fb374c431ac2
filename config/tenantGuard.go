package config

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/mmdatafocus/kiosk_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

var ErrCrossTenantWrite = errors.New("tenant guard: business_id does not match request tenant")

// TenantGuardPlugin enforces multi-tenant isolation for models with a business_id column:
//   - query/row/update/delete get `business_id = ?` from the request context unless the
//     statement already filters on business_id;
//   - create fills an empty business_id from the context and rejects a mismatching one.
//
// Raw SQL is not touched; ledger queries always carry business_id explicitly.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("tenant_guard:query", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("tenant_guard:row", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("tenant_guard:update", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("tenant_guard:delete", tenantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Create().Before("gorm:create").Register("tenant_guard:create", tenantGuardCreateCallback); err != nil {
		return err
	}
	return nil
}

func tenantGuardCallback(db *gorm.DB) {
	businessID, field := guardedTenant(db)
	if businessID == "" || field == nil {
		return
	}
	if whereHasBusinessID(db.Statement.Clauses["WHERE"]) {
		return
	}
	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "business_id"},
				Value:  businessID,
			},
		},
	})
}

func tenantGuardCreateCallback(db *gorm.DB) {
	businessID, field := guardedTenant(db)
	if businessID == "" || field == nil {
		return
	}
	rv := db.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := stampTenant(db, field, rv.Index(i), businessID); err != nil {
				_ = db.AddError(err)
				return
			}
		}
	case reflect.Struct:
		if err := stampTenant(db, field, rv, businessID); err != nil {
			_ = db.AddError(err)
		}
	}
}

func stampTenant(db *gorm.DB, field *schema.Field, rv reflect.Value, businessID string) error {
	ctx := db.Statement.Context
	v, zero := field.ValueOf(ctx, rv)
	if zero {
		return field.Set(ctx, rv, businessID)
	}
	if s, ok := v.(string); ok && s != businessID {
		return ErrCrossTenantWrite
	}
	return nil
}

// guardedTenant returns the request tenant and the model's business_id field,
// or empty values when the guard does not apply.
func guardedTenant(db *gorm.DB) (string, *schema.Field) {
	if db == nil || db.Statement == nil {
		return "", nil
	}
	ctx := db.Statement.Context
	if ctx == nil || shouldBypassTenantScope(ctx) {
		return "", nil
	}
	businessID := businessIdFromContext(ctx)
	if businessID == "" || db.Statement.Schema == nil {
		return "", nil
	}
	for _, f := range db.Statement.Schema.Fields {
		if strings.EqualFold(f.DBName, "business_id") {
			return businessID, f
		}
	}
	return "", nil
}

func businessIdFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(appctx.ContextKeyBusinessId).(string); ok && v != "" {
		return v
	}
	return ""
}

func shouldBypassTenantScope(ctx context.Context) bool {
	if v, ok := ctx.Value(appctx.ContextKeySkipTenantScope).(bool); ok && v {
		return true
	}
	if v, ok := ctx.Value(appctx.ContextKeyIsAdmin).(bool); ok && v {
		return true
	}
	return false
}

func whereHasBusinessID(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasBusinessID(e) {
			return true
		}
	}
	return false
}

func exprHasBusinessID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsBusinessID(v.Column)
	case clause.IN:
		return colIsBusinessID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasBusinessID(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		// Best-effort for raw expressions.
		return strings.Contains(strings.ToLower(v.SQL), "business_id")
	case clause.NamedExpr:
		return strings.Contains(strings.ToLower(v.SQL), "business_id")
	default:
		return false
	}
}

func colIsBusinessID(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "business_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "business_id")
	default:
		return false
	}
}
