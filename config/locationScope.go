package config

import (
	"context"
	"reflect"
	"strings"

	"github.com/mmdatafocus/retail_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScopedModel is implemented by models whose rows belong to a location and, optionally, a customer.
// Returning "" from a method disables that filter for the model.
type ScopedModel interface {
	LocationScopeColumn() string
	CustomerScopeColumn() string
}

// LocationScopePlugin restricts reads, updates and deletes of scoped models to the request's access
// scope: store staff see their assigned location, customers see their own rows.
//
// NOTE:
// - This does NOT apply to Raw SQL queries. Those must filter manually.
// - Internal workers bypass it explicitly via appctx.ContextKeySkipLocationScope.
type LocationScopePlugin struct{}

func NewLocationScopePlugin() *LocationScopePlugin { return &LocationScopePlugin{} }

func (p *LocationScopePlugin) Name() string { return "location_scope" }

func (p *LocationScopePlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("location_scope:query", locationScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("location_scope:row", locationScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("location_scope:update", locationScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("location_scope:delete", locationScopeCallback); err != nil {
		return err
	}
	return nil
}

func locationScopeCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil || db.Statement.Schema == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil || shouldBypassLocationScope(ctx) {
		return
	}
	scope, ok := appctx.GetScope(ctx)
	if !ok || scope == nil {
		return
	}

	model, ok := scopedModelOf(db.Statement.Schema.ModelType)
	if !ok {
		return
	}

	var exprs []clause.Expression
	if col := model.LocationScopeColumn(); col != "" && scope.ScopeLocationId() != 0 && !whereHasColumn(db.Statement.Clauses["WHERE"], col) {
		exprs = append(exprs, clause.Eq{
			Column: clause.Column{Table: db.Statement.Table, Name: col},
			Value:  scope.ScopeLocationId(),
		})
	}
	if col := model.CustomerScopeColumn(); col != "" && scope.ScopeCustomerUserId() != 0 && !whereHasColumn(db.Statement.Clauses["WHERE"], col) {
		exprs = append(exprs, clause.Eq{
			Column: clause.Column{Table: db.Statement.Table, Name: col},
			Value:  scope.ScopeCustomerUserId(),
		})
	}
	if len(exprs) == 0 {
		return
	}
	db.Statement.AddClause(clause.Where{Exprs: exprs})
}

func scopedModelOf(t reflect.Type) (ScopedModel, bool) {
	if t == nil {
		return nil, false
	}
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, false
	}
	m, ok := reflect.New(t).Interface().(ScopedModel)
	return m, ok
}

func shouldBypassLocationScope(ctx context.Context) bool {
	v, ok := ctx.Value(appctx.ContextKeySkipLocationScope).(bool)
	return ok && v
}

func whereHasColumn(c clause.Clause, name string) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasColumn(e, name) {
			return true
		}
	}
	return false
}

func exprHasColumn(e clause.Expression, name string) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIs(v.Column, name)
	case clause.Neq:
		return colIs(v.Column, name)
	case clause.IN:
		return colIs(v.Column, name)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasColumn(x, name) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasColumn(x, name) {
				return true
			}
		}
		return false
	case clause.Expr:
		// Best-effort for raw expressions.
		return strings.Contains(strings.ToLower(v.SQL), name)
	default:
		return false
	}
}

func colIs(col any, name string) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, name)
	case clause.Column:
		return strings.EqualFold(c.Name, name)
	default:
		return false
	}
}
