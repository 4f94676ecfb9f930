// Package services implements the field synchronisation core.
//
// The pieces are:
//
//   - RecordSetReconciler: diffs a field value against the CRM and issues
//     creates, updates and deletes in that order
//   - EventMapper and KindModule: normalise CRM notifications and route
//     them to the module registered for each kind
//   - ReverseEditGuard: drops notifications caused by the other direction's
//     own writes within one request
//   - FieldSyncService: ties the above to the driven ports and implements
//     driving.FieldSync
//
// Services talk to the outside only through the driven ports.
package services
