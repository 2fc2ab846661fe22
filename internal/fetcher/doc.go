// Package fetcher retrieves snapshots from external providers.
//
// One Fetcher exists per source kind. Every failure (transport, timeout,
// non-2xx status, undecodable or malformed payload) surfaces as a
// *FetchError; fetchers never retry, the next scheduled tick does.
package fetcher
