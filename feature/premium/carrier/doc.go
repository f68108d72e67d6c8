// Package carrier loads per-carrier remittance files from object
// storage. Files are CSVs (account_id,amount,memo) laid out as
// <prefix>/<billing period>/<carrier>.csv; parsed files are cached per
// period with a TTL.
package carrier
