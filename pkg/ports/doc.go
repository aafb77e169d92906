/*
Package ports defines the driven ports (interfaces) of the rewind engine.

These interfaces decouple sessions from the infrastructure that persists their
activity, so the same session manager runs against memory or redis backends.

# Key Interfaces

  - Journal: Appends and reads the lifecycle records of a session's history.
  - DistributedLocker: Provides distributed locking for handling concurrent session access.
*/
package ports
