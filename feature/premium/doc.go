// Package premium reconciles collected premiums for a billing period
// against carrier remittance files. It sums completed transfers in the
// period window, loads per-carrier totals from object storage, and
// validates that the two sides agree within the standard amount
// tolerance. Reports are archived to the billing bucket.
package premium
