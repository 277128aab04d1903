package models

import (
	"context"
	"testing"

	"github.com/mmdatafocus/retail_backend/utils"
)

func TestNewAccessScope_Roles(t *testing.T) {
	admin := NewAccessScope(1, "a", []string{RoleAdmin}, 0)
	if !admin.AllLocations || admin.ScopeLocationId() != 0 || !admin.IsManager() {
		t.Fatalf("admin scope = %+v", admin)
	}

	manager := NewAccessScope(2, "m", []string{RoleStoreManager}, 7)
	if manager.AllLocations || manager.CustomerOnly {
		t.Fatalf("manager must be location-bound: %+v", manager)
	}
	if manager.ScopeLocationId() != 7 || !manager.CanAccessLocation(7) || manager.CanAccessLocation(8) {
		t.Fatalf("manager location checks wrong: %+v", manager)
	}

	unassigned := NewAccessScope(3, "s", []string{RoleStaff}, 0)
	if unassigned.ScopeLocationId() != -1 || unassigned.CanAccessLocation(0) {
		t.Fatalf("unassigned staff must see no location: %+v", unassigned)
	}

	customer := NewAccessScope(4, "c", nil, 0)
	if !customer.CustomerOnly || customer.ScopeCustomerUserId() != 4 || customer.IsStaff() {
		t.Fatalf("customer scope = %+v", customer)
	}
}

func TestAccessScope_CanTransition(t *testing.T) {
	customer := NewAccessScope(4, "c", []string{RoleCustomer}, 0)
	if !customer.CanTransition(OrderChannelOnline, OrderActionCancel, 1) {
		t.Fatalf("customers may cancel their online orders")
	}
	if customer.CanTransition(OrderChannelOnline, OrderActionShip, 1) {
		t.Fatalf("customers may not ship")
	}
	if customer.CanTransition(OrderChannelSales, OrderActionCancel, 1) {
		t.Fatalf("customers may not touch sales orders")
	}

	staff := NewAccessScope(5, "s", []string{RoleStaff}, 1)
	if staff.CanTransition(OrderChannelPurchase, OrderActionApprove, 1) {
		t.Fatalf("purchase approval needs a manager")
	}
	if !staff.CanTransition(OrderChannelPurchase, OrderActionReceive, 1) {
		t.Fatalf("staff may receive at their location")
	}
	if staff.CanTransition(OrderChannelSales, OrderActionShip, 2) {
		t.Fatalf("staff may not act on another location")
	}
}

func TestWithAccessScope_SetsActor(t *testing.T) {
	ctx := WithAccessScope(context.Background(), NewAccessScope(9, "Nia", []string{RoleStaff}, 1))
	if id, _ := utils.GetUserIdFromContext(ctx); id != 9 {
		t.Fatalf("user id = %d", id)
	}
	if name, _ := utils.GetUserNameFromContext(ctx); name != "Nia" {
		t.Fatalf("user name = %q", name)
	}
	if ScopeFromContext(ctx).UserId != 9 {
		t.Fatalf("scope not attached")
	}
	if !ScopeFromContext(context.Background()).System {
		t.Fatalf("missing scope must fall back to the system scope")
	}
}
