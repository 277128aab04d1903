package models

import (
	"reflect"
	"testing"

	"github.com/mmdatafocus/retail_backend/utils"
)

func TestNextOrderStatus_Tables(t *testing.T) {
	cases := []struct {
		channel OrderChannel
		from    OrderStatus
		action  OrderAction
		to      OrderStatus
		effect  ledgerEffect
	}{
		{OrderChannelSales, OrderStatusPending, OrderActionConfirm, OrderStatusConfirmed, ledgerEffectNone},
		{OrderChannelSales, OrderStatusConfirmed, OrderActionShip, OrderStatusShipped, ledgerEffectDeduct},
		{OrderChannelSales, OrderStatusShipped, OrderActionDeliver, OrderStatusDelivered, ledgerEffectNone},
		{OrderChannelSales, OrderStatusShipped, OrderActionCancel, OrderStatusCancelled, ledgerEffectNone},
		{OrderChannelPurchase, OrderStatusPending, OrderActionApprove, OrderStatusApproved, ledgerEffectNone},
		{OrderChannelPurchase, OrderStatusApproved, OrderActionReceive, OrderStatusReceived, ledgerEffectAdd},
		{OrderChannelPurchase, OrderStatusApproved, OrderActionCancel, OrderStatusCancelled, ledgerEffectNone},
		{OrderChannelOnline, OrderStatusPending, OrderActionAccept, OrderStatusAccepted, ledgerEffectCheck},
		{OrderChannelOnline, OrderStatusAccepted, OrderActionShip, OrderStatusShipped, ledgerEffectDeduct},
		{OrderChannelOnline, OrderStatusShipped, OrderActionDeliver, OrderStatusDelivered, ledgerEffectNone},
		{OrderChannelOnline, OrderStatusPending, OrderActionCancel, OrderStatusCancelled, ledgerEffectNone},
	}
	for _, tc := range cases {
		got, err := nextOrderStatus(tc.channel, tc.from, tc.action)
		if err != nil {
			t.Fatalf("%s %s --%s-->: unexpected error %v", tc.channel, tc.from, tc.action, err)
		}
		if got.To != tc.to || got.Effect != tc.effect {
			t.Fatalf("%s %s --%s--> got (%s, %d), want (%s, %d)", tc.channel, tc.from, tc.action, got.To, got.Effect, tc.to, tc.effect)
		}
	}
}

func TestNextOrderStatus_RejectsIllegalMoves(t *testing.T) {
	cases := []struct {
		channel OrderChannel
		from    OrderStatus
		action  OrderAction
	}{
		{OrderChannelSales, OrderStatusPending, OrderActionShip},
		{OrderChannelSales, OrderStatusDelivered, OrderActionCancel},
		{OrderChannelSales, OrderStatusCancelled, OrderActionConfirm},
		{OrderChannelSales, OrderStatusPending, OrderActionReceive},
		{OrderChannelPurchase, OrderStatusPending, OrderActionReceive},
		{OrderChannelPurchase, OrderStatusReceived, OrderActionCancel},
		{OrderChannelOnline, OrderStatusPending, OrderActionShip},
		{OrderChannelOnline, OrderStatusDelivered, OrderActionCancel},
		{OrderChannelOnline, OrderStatusPending, OrderActionConfirm},
	}
	for _, tc := range cases {
		_, err := nextOrderStatus(tc.channel, tc.from, tc.action)
		if err == nil {
			t.Fatalf("%s %s --%s--> should be rejected", tc.channel, tc.from, tc.action)
		}
		if !utils.IsValidation(err) {
			t.Fatalf("%s %s --%s--> want validation error, got %T", tc.channel, tc.from, tc.action, err)
		}
	}
}

func TestAllowedOrderActions(t *testing.T) {
	cases := []struct {
		channel OrderChannel
		status  OrderStatus
		want    []OrderAction
	}{
		{OrderChannelSales, OrderStatusPending, []OrderAction{OrderActionConfirm, OrderActionCancel}},
		{OrderChannelSales, OrderStatusConfirmed, []OrderAction{OrderActionShip, OrderActionCancel}},
		{OrderChannelPurchase, OrderStatusApproved, []OrderAction{OrderActionReceive, OrderActionCancel}},
		{OrderChannelOnline, OrderStatusAccepted, []OrderAction{OrderActionShip, OrderActionCancel}},
		{OrderChannelOnline, OrderStatusDelivered, nil},
	}
	for _, tc := range cases {
		got := AllowedOrderActions(tc.channel, tc.status)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("AllowedOrderActions(%s, %s) = %v, want %v", tc.channel, tc.status, got, tc.want)
		}
	}
}

func TestOrderLedgerChanges_SkipsAssemblyLines(t *testing.T) {
	assemblyId := 4
	lines := []OrderLine{
		{ItemId: 1, LocationId: 2, Quantity: dec("3")},
		{ItemId: 9, LocationId: 2, Quantity: dec("1"), AssemblyId: &assemblyId},
	}

	deduct := orderLedgerChanges(lines, ledgerEffectDeduct)
	if len(deduct) != 1 || !deduct[0].Delta.Equal(dec("-3")) {
		t.Fatalf("deduct changes = %+v", deduct)
	}
	add := orderLedgerChanges(lines, ledgerEffectAdd)
	if len(add) != 1 || !add[0].Delta.Equal(dec("3")) {
		t.Fatalf("add changes = %+v", add)
	}
}

func TestMovementTypeFor(t *testing.T) {
	if movementTypeFor(OrderChannelPurchase) != MovementReferencePurchaseReceipt {
		t.Fatalf("purchase receipts must be tagged PO")
	}
	if movementTypeFor(OrderChannelOnline) != MovementReferenceOnlineShipment {
		t.Fatalf("online shipments must be tagged OO")
	}
	if movementTypeFor(OrderChannelSales) != MovementReferenceSalesShipment {
		t.Fatalf("sales shipments must be tagged SO")
	}
}

func TestFormatOrderNumber(t *testing.T) {
	if got := formatOrderNumber(OrderPrefixSales, 42); got != "SO-000042" {
		t.Fatalf("formatOrderNumber = %q", got)
	}
	if orderPrefix(OrderChannelOnline, true) != OrderPrefixGuest {
		t.Fatalf("guest online orders use their own prefix")
	}
	if orderPrefix(OrderChannelOnline, false) != OrderPrefixOnline {
		t.Fatalf("registered online orders use OO")
	}
}
