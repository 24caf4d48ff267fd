// Package scrape defines the core types and interfaces for the bulk
// documentation scraping engine: jobs, batches, site configurations, and the
// collaborator contracts the worker loop is wired against.
package scrape
