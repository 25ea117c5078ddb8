package billing

import (
	"strings"
	"time"
)

func normalizeInterval(interval string) string {
	i := strings.ToLower(strings.TrimSpace(interval))
	switch i {
	case "month", "year":
		return i
	default:
		return "unknown"
	}
}

// recurringInterval pulls the billing interval from the first subscription
// item's price, or "unknown" when the provider gave none.
func recurringInterval(sub *ProviderSubscription) string {
	for _, item := range sub.Items.Data {
		if item.Price.Recurring.Interval != "" {
			return normalizeInterval(item.Price.Recurring.Interval)
		}
	}
	return "unknown"
}

// Reconcile derives the partial record one event writes. It is a pure
// function of the event kind, the resolved objects, and the processing time;
// a nil patch means the event requires no store write. Fresh re-fetched
// objects always outrank the notification payload, so the same logical update
// lands identically whether it arrived alone or after a lookup.
func Reconcile(kind EventKind, res *Resolved, now time.Time) *Patch {
	switch kind {
	case KindCheckoutCompleted:
		if res.Subscription == nil {
			// One-time purchase: active immediately, no billing period end.
			start := now
			return &Patch{
				Email:              res.Email,
				Plan:               "one_time",
				Status:             "active",
				PeriodStart:        &start,
				ClearPeriodEnd:     true,
				ProviderCustomerID: res.CustomerID,
			}
		}
		return subscriptionPatch(res, now)

	case KindSubscriptionUpdated:
		return subscriptionPatch(res, now)

	case KindSubscriptionDeleted:
		// Cancellation is a status flip, not a wipe: the last known plan and
		// paid period stay on the record.
		canceledAt := now
		return &Patch{
			Email:                  res.Email,
			Status:                 "canceled",
			CanceledAt:             &canceledAt,
			ProviderSubscriptionID: res.Subscription.ID,
			ProviderCustomerID:     res.CustomerID,
		}

	case KindPaymentSucceeded:
		// Renewal payments carry a subscription: delegate to the update rule
		// using the refreshed subscription. One-off invoices derive nothing.
		if res.Subscription == nil {
			return nil
		}
		return subscriptionPatch(res, now)

	case KindPaymentFailed:
		return &Patch{
			Email:              res.Email,
			Status:             "past_due",
			ProviderCustomerID: res.CustomerID,
		}

	default:
		return nil
	}
}

// subscriptionPatch derives the full field set a subscription object yields.
// Unknown provider statuses pass through verbatim rather than collapsing, so
// the record never claims more than the provider said.
func subscriptionPatch(res *Resolved, now time.Time) *Patch {
	sub := res.Subscription
	patch := &Patch{
		Email:                  res.Email,
		Plan:                   recurringInterval(sub),
		Status:                 strings.ToLower(strings.TrimSpace(sub.Status)),
		ProviderSubscriptionID: sub.ID,
		ProviderCustomerID:     res.CustomerID,
	}
	if patch.ProviderCustomerID == "" {
		patch.ProviderCustomerID = sub.Customer
	}

	if sub.CurrentPeriodStart > 0 {
		start := time.Unix(sub.CurrentPeriodStart, 0).UTC()
		patch.PeriodStart = &start
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		patch.PeriodEnd = &end
	}

	if patch.Status == "canceled" {
		canceledAt := now
		if sub.CanceledAt > 0 {
			canceledAt = time.Unix(sub.CanceledAt, 0).UTC()
		}
		patch.CanceledAt = &canceledAt
	}

	return patch
}
