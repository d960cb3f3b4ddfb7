// Package validation checks flat string settings against pipe-separated
// rule strings. Service providers use it to declare which configuration a
// service needs before it may be wired.
//
//	v := validation.Make(cfg.Snapshot(), validation.Rules{
//	    "ZAPI_INSTANCE_ID":    "required",
//	    "ZAPI_INSTANCE_TOKEN": "required",
//	    "OWNER_PHONE":         "required|numeric",
//	})
//	if v.Fails() {
//	    log.Info("messaging disabled", zap.Strings("missing", v.Errors().Fields()))
//	}
//
// Rules: required, required_without:A,B, numeric, integer, boolean,
// accepted, url, min:n, in:a,b, regex:expr, sometimes. Validation of a field
// stops at its first failing rule.
package validation
