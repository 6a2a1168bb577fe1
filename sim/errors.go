package sim

import "fmt"

// Construction errors carry the offending gid, label, or mechanism so the
// driver can surface an actionable message before aborting the run.

// BadCellDescriptionError reports a recipe whose description type disagrees
// with the kind it declared for the cell.
type BadCellDescriptionError struct {
	GID  GID
	Kind CellKind
}

func (e *BadCellDescriptionError) Error() string {
	return fmt.Sprintf("recipe: description for cell %d does not match cell kind %s", e.GID, e.Kind)
}

// BadConnectionSourceError reports a connection whose source gid is outside
// [0, NumCells).
type BadConnectionSourceError struct {
	Target GID
	Source GID
}

func (e *BadConnectionSourceError) Error() string {
	return fmt.Sprintf("recipe: connection on cell %d has out-of-range source gid %d", e.Target, e.Source)
}

// SourceGIDExceedsLimitError reports a source gid in the upper half of the
// gid space, which is reserved for external sources.
type SourceGIDExceedsLimitError struct {
	Target GID
	Source GID
}

func (e *SourceGIDExceedsLimitError) Error() string {
	return fmt.Sprintf("recipe: connection on cell %d has source gid %d above the limit %d", e.Target, e.Source, MaxGID/2)
}

// BadConnectionError reports a connection with a non-finite or out-of-range
// weight or delay.
type BadConnectionError struct {
	Target GID
	Reason string
}

func (e *BadConnectionError) Error() string {
	return fmt.Sprintf("recipe: bad connection on cell %d: %s", e.Target, e.Reason)
}

// BadConnectionLabelError reports a label that did not resolve, or resolved
// to a range incompatible with the requested selection policy.
type BadConnectionLabelError struct {
	GID    GID
	Label  string
	Reason string
}

func (e *BadConnectionLabelError) Error() string {
	return fmt.Sprintf("label %q on cell %d: %s", e.Label, e.GID, e.Reason)
}

// GJUnsupportedLidSelectionPolicy reports a gap-junction site whose label
// resolves to more than one item. Gap junctions require univalent labels.
type GJUnsupportedLidSelectionPolicy struct {
	GID   GID
	Label string
}

func (e *GJUnsupportedLidSelectionPolicy) Error() string {
	return fmt.Sprintf("gap junction on cell %d: label %q selects more than one site", e.GID, e.Label)
}

// DuplicateGIDError reports a gid assigned to more than one group by the
// domain decomposition.
type DuplicateGIDError struct {
	GID GID
}

func (e *DuplicateGIDError) Error() string {
	return fmt.Sprintf("domain decomposition: gid %d appears in more than one group", e.GID)
}

// InvalidSumLocalCellsError reports a decomposition whose per-rank cell
// counts do not sum to the global cell count.
type InvalidSumLocalCellsError struct {
	Sum      int
	NumCells int
}

func (e *InvalidSumLocalCellsError) Error() string {
	return fmt.Sprintf("domain decomposition: local cell counts sum to %d, expected %d", e.Sum, e.NumCells)
}

// InvalidBackendError reports a group declared on a backend that is not
// available in the current context.
type InvalidBackendError struct {
	Backend BackendKind
}

func (e *InvalidBackendError) Error() string {
	return fmt.Sprintf("domain decomposition: backend %s not available on this rank", e.Backend)
}

// IncompatibleBackendError reports a cell kind that cannot run on the
// backend its group was assigned.
type IncompatibleBackendError struct {
	Kind    CellKind
	Backend BackendKind
}

func (e *IncompatibleBackendError) Error() string {
	return fmt.Sprintf("domain decomposition: cell kind %s cannot run on backend %s", e.Kind, e.Backend)
}

// GJDomainMismatchError reports a gap junction whose endpoints were placed
// on different domains.
type GJDomainMismatchError struct {
	A GID
	B GID
}

func (e *GJDomainMismatchError) Error() string {
	return fmt.Sprintf("gap junction between cells %d and %d spans two domains", e.A, e.B)
}

// CableCellError reports an inconsistent cable-cell construction: mechanism
// kind disagreeing with its site, overlapping concentration writers, or an
// ion charge mismatch.
type CableCellError struct {
	GID    GID
	Detail string
}

func (e *CableCellError) Error() string {
	return fmt.Sprintf("cable cell %d: %s", e.GID, e.Detail)
}

// NoSuchMechanismError reports a mechanism name absent from the catalogue.
type NoSuchMechanismError struct {
	Name string
}

func (e *NoSuchMechanismError) Error() string {
	return fmt.Sprintf("mechanism catalogue: no mechanism %q", e.Name)
}

// InvalidParameterError reports a mechanism parameter set to a value
// outside its valid range.
type InvalidParameterError struct {
	Mechanism string
	Parameter string
	Value     float64
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("mechanism %q: invalid value %g for parameter %q", e.Mechanism, e.Value, e.Parameter)
}

// IllegalDiffusiveMechanismError reports a diffusive ion with a missing or
// non-positive diffusivity.
type IllegalDiffusiveMechanismError struct {
	GID GID
	Ion string
}

func (e *IllegalDiffusiveMechanismError) Error() string {
	return fmt.Sprintf("cable cell %d: ion %q requires a positive diffusivity", e.GID, e.Ion)
}
