// Package news fetches and normalizes articles from the RapidAPI
// real-time news search endpoint.
package news
