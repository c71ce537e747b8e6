// Package acm loads HTK-ASCII acoustic models into immutable in-memory
// form. A model directory holds an hmmdefs file (one HMM definition per
// phone, diagonal-covariance GMM emissions, a log-domain transition
// matrix), an optional monophones listing and an optional tiedlist.
//
// Models are loaded once per language and shared read-only across all
// alignment workers.
package acm
