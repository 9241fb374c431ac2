package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/kiosk_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func newTestCustomerCredit(l *fakeLedger) *CustomerCredit {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewCustomerCredit(l, logger)
}

func TestCreateCustomer_NormalizesPhone(t *testing.T) {
	t.Setenv("DEFAULT_PHONE_REGION", "US")
	l := newFakeLedger()
	tenant := models.Tenant{BusinessId: "biz-1"}

	c, err := newTestCustomerCredit(l).CreateCustomer(context.Background(), tenant, &NewCustomer{Name: " Daw Hla ", Phone: "(201) 555-0123"})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	if c.Name != "Daw Hla" || c.Phone != "+12015550123" || !c.CreditBalance.IsZero() {
		t.Fatalf("unexpected customer: %+v", c)
	}

	if _, err := newTestCustomerCredit(l).CreateCustomer(context.Background(), tenant, &NewCustomer{Name: ""}); err == nil {
		t.Fatalf("expected validation error for empty name")
	}
}

func TestRecordCreditPayment_ReducesBalance(t *testing.T) {
	l := newFakeLedger()
	tenant := models.Tenant{BusinessId: "biz-1", UserId: 4}
	customer := &models.Customer{Name: "Ko Min", CreditBalance: dec(100)}
	_ = l.CreateCustomer(context.Background(), tenant, customer)
	cc := newTestCustomerCredit(l)

	entry, err := cc.RecordCreditPayment(context.Background(), tenant, &NewCreditPayment{CustomerId: customer.ID, Amount: dec(40), Notes: "cash"})
	if err != nil {
		t.Fatalf("RecordCreditPayment: %v", err)
	}
	if entry.EntryType != models.CreditEntryTypePayment || !entry.Amount.Equal(dec(-40)) || entry.CreatedBy != 4 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	got, _ := l.GetCustomer(context.Background(), tenant, customer.ID)
	if !got.CreditBalance.Equal(dec(60)) {
		t.Fatalf("balance: got %s want 60", got.CreditBalance)
	}

	if _, err := cc.RecordCreditPayment(context.Background(), tenant, &NewCreditPayment{CustomerId: customer.ID, Amount: dec(0)}); !errors.Is(err, models.ErrInvalidQuantity) {
		t.Fatalf("zero payment: got %v", err)
	}
	if _, err := cc.RecordCreditPayment(context.Background(), tenant, &NewCreditPayment{CustomerId: customer.ID, Amount: decimal.RequireFromString("0.00005")}); !errors.Is(err, models.ErrInvalidQuantity) {
		t.Fatalf("payment below storage scale: got %v", err)
	}
	if _, err := cc.RecordCreditPayment(context.Background(), models.Tenant{BusinessId: "biz-2"}, &NewCreditPayment{CustomerId: customer.ID, Amount: dec(1)}); !errors.Is(err, models.ErrCustomerNotFound) {
		t.Fatalf("cross-tenant payment: got %v", err)
	}
}
