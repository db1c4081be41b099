// Package patch applies unified-diff style patches to text.
//
// Patches handled here usually come from a language model and are treated as
// untrusted input: line numbers may be wrong, hunks may arrive out of order and
// the body may be partial. Apply never fails. It runs an ordered list of
// strategies, each of which computes a complete candidate result or declines,
// and falls back to returning the original text unchanged.
//
// Parsing happens in two phases:
//   - Parse builds a structured hunk list from "@@ -a,b +c,d @@" headers
//   - Scan classifies patch lines by prefix when no usable headers exist
package patch
