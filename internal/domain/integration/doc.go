// Package integration contains the Marketplace Integration bounded context.
// It models how a tenant's marketplace account is kept authorized, paced and
// mirrored into local orders, products and customers.
//
// Key concepts:
//   - IntegrationCredential: OAuth credential owned by one (tenant, marketplace) key
//   - RateLimitWindow: provider-reported quota used to pace outbound calls
//   - SyncCursor: durable marker of sync progress per resource kind
//   - CanonicalOrder / CanonicalProduct / CanonicalCustomer: mapped local records
//   - MarketplaceAPI: port for the typed remote listing and detail endpoints
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
