package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/netip"
	"reflect"
	"regexp"
	"strings"
	"time"

	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/jackc/pgx/v5"
)

/*
A general error to be used when no results are found. This is the error returned
by QueryOne, and can generally be used by other database helpers that fetch a single
result but find nothing.
*/
var NotFound = errors.New("not found")

/*
Performs a SQL query and returns a slice of all the result rows. The query is just plain SQL, but make sure to read the package documentation for details. You must explicitly provide the type argument - this is how it knows what Go type to map the results to, and it cannot be inferred.

Any SQL query may be performed, including INSERT and UPDATE - as long as it returns a result set, you can use this. If the query does not return a result set, or you simply do not care about the result set, call Exec directly on your pgx connection.

This function always returns pointers to the values. This is convenient for structs, but for other types, you may wish to use QueryScalar.
*/
func Query[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) ([]*T, error) {
	it, err := QueryIterator[T](ctx, conn, query, args...)
	if err != nil {
		return nil, err
	}
	return it.ToSlice()
}

/*
Identical to Query, but returns only the first result row. If there are no
rows in the result set, returns NotFound.
*/
func QueryOne[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) (*T, error) {
	rows, err := QueryIterator[T](ctx, conn, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result, hasRow := rows.Next()
	if !hasRow {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, NotFound
	}

	return result, nil
}

/*
Identical to Query, but returns concrete values instead of pointers. More convenient
for primitive types.
*/
func QueryScalar[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) ([]T, error) {
	rows, err := QueryIterator[T](ctx, conn, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []T
	for {
		val, hasRow := rows.Next()
		if !hasRow {
			break
		}
		result = append(result, *val)
	}

	return result, rows.Err()
}

/*
Identical to QueryScalar, but returns only the first result value. If there are
no rows in the result set, returns NotFound.
*/
func QueryOneScalar[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) (T, error) {
	var zero T
	rows, err := QueryIterator[T](ctx, conn, query, args...)
	if err != nil {
		return zero, err
	}
	defer rows.Close()

	result, hasRow := rows.Next()
	if !hasRow {
		if err := rows.Err(); err != nil {
			return zero, err
		}
		return zero, NotFound
	}

	return *result, nil
}

/*
Identical to Query, but returns the Iterator instead of automatically converting the results to a slice. The iterator must be closed after use.
*/
func QueryIterator[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) (*Iterator[T], error) {
	var destExample T
	destType := reflect.TypeOf(destExample)

	compiled, err := compileQuery(query, destType)
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(ctx, compiled.query, args...)
	if err != nil {
		return nil, err
	}

	it := &Iterator[T]{
		fieldPaths:       compiled.fieldPaths,
		rows:             rows,
		destType:         compiled.destType,
		destTypeIsScalar: typeIsQueryable(compiled.destType),
		closed:           make(chan struct{}, 1),
	}

	// Ensure that iterators are closed if context is cancelled. Otherwise, iterators can hold
	// open connections even after a request is cancelled, causing the app to deadlock.
	go func() {
		done := ctx.Done()
		if done == nil {
			return
		}
		select {
		case <-done:
			it.Close()
		case <-it.closed:
		}
	}()

	return it, nil
}

type compiledQuery struct {
	query      string
	destType   reflect.Type
	fieldPaths []fieldPath
}

var reColumnsPlaceholder = regexp.MustCompile(`\$columns({(.*?)})?`)

func compileQuery(query string, destType reflect.Type) (compiledQuery, error) {
	columnsMatch := reColumnsPlaceholder.FindStringSubmatch(query)
	if columnsMatch == nil {
		return compiledQuery{
			query:    query,
			destType: destType,
		}, nil
	}

	// The presence of the $columns placeholder means that the destination type
	// must be a struct, and we will plonk that struct's fields into the query.
	if destType.Kind() != reflect.Struct {
		return compiledQuery{}, oops.New(nil, "$columns can only be used when querying into a struct")
	}

	columnNames, fieldPaths, err := getColumnNamesAndPaths(destType, nil, columnsMatch[2])
	if err != nil {
		return compiledQuery{}, err
	}

	columnNamesString := strings.Join(columnNames, ", ")
	query = reColumnsPlaceholder.ReplaceAllString(query, columnNamesString)

	return compiledQuery{
		query:      query,
		destType:   destType,
		fieldPaths: fieldPaths,
	}, nil
}

/*
Walks the `db` tags of a struct type. Fields whose type can be scanned
directly become columns; struct fields with a `db` tag are walked in turn, and
their tag becomes the table prefix of their columns (so a field tagged
`db:"author"` contributes columns like `author.username`).
*/
func getColumnNamesAndPaths(destType reflect.Type, pathSoFar []int, prefix string) (names []string, paths []fieldPath, err error) {
	if destType.Kind() == reflect.Ptr {
		destType = destType.Elem()
	}

	if destType.Kind() != reflect.Struct {
		return nil, nil, oops.New(nil, "can only get column names and paths from a struct, got type '%v' (at prefix '%v')", destType.Name(), prefix)
	}

	for i := 0; i < destType.NumField(); i++ {
		field := destType.Field(i)
		columnName := field.Tag.Get("db")
		if columnName == "" {
			continue
		}

		path := make(fieldPath, len(pathSoFar), len(pathSoFar)+1)
		copy(path, pathSoFar)
		path = append(path, i)

		fullName := columnName
		if prefix != "" {
			fullName = prefix + "." + columnName
		}

		fieldType := field.Type
		if fieldType.Kind() == reflect.Ptr {
			fieldType = fieldType.Elem()
		}

		if typeIsQueryable(fieldType) {
			names = append(names, fullName)
			paths = append(paths, path)
		} else if fieldType.Kind() == reflect.Struct {
			subCols, subPaths, err := getColumnNamesAndPaths(fieldType, path, columnName)
			if err != nil {
				return nil, nil, err
			}
			names = append(names, subCols...)
			paths = append(paths, subPaths...)
		} else {
			return nil, nil, oops.New(nil, "field '%s' in type %s has invalid type '%s'", field.Name, destType, field.Type)
		}
	}

	return names, paths, nil
}

var scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

// Structs that pgx knows how to scan into, and that therefore map to a single
// column instead of being walked for more `db` tags.
var scannableStructs = map[reflect.Type]bool{
	reflect.TypeOf(time.Time{}):    true,
	reflect.TypeOf(netip.Prefix{}): true,
	reflect.TypeOf(netip.Addr{}):   true,
}

/*
Checks if we are able to handle a particular type in a database query. This applies only to
primitive types and not structs, since the database only returns individual primitive types
and it is our job to stitch them back together into structs later.
*/
func typeIsQueryable(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return true
	}
	if scannableStructs[t] || reflect.PointerTo(t).Implements(scannerType) {
		return true
	}
	return strings.HasPrefix(t.PkgPath(), "github.com/jackc/pgx/v5/pgtype")
}

// A path to a particular field in query's destination type. Each index in the slice
// corresponds to a field index for use with Field on a reflect.Type or reflect.Value.
type fieldPath []int

type Iterator[T any] struct {
	fieldPaths       []fieldPath
	rows             pgx.Rows
	destType         reflect.Type
	destTypeIsScalar bool
	closed           chan struct{}
	err              error
}

/*
Scans the next row. Returns false when the rows are exhausted or scanning
failed; check Err to tell the two apart.
*/
func (it *Iterator[T]) Next() (*T, bool) {
	if it.err != nil || !it.rows.Next() {
		it.Close()
		return nil, false
	}

	result := reflect.New(it.destType)

	var dests []any
	if it.destTypeIsScalar {
		dests = []any{result.Interface()}
	} else {
		dests = make([]any, len(it.fieldPaths))
		for i, path := range it.fieldPaths {
			field, _, err := followPathThroughStructs(result, path)
			if err != nil {
				it.err = err
				it.Close()
				return nil, false
			}
			// Pointer fields are scanned through their address so that NULL
			// leaves them nil.
			dests[i] = field.Addr().Interface()
		}
	}

	if err := it.rows.Scan(dests...); err != nil {
		it.err = oops.New(err, "failed to scan row into %s", it.destType)
		it.Close()
		return nil, false
	}

	return result.Interface().(*T), true
}

func (it *Iterator[T]) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

func (it *Iterator[T]) Close() {
	it.rows.Close()
	select {
	case it.closed <- struct{}{}:
	default:
	}
}

/*
Pulls all the remaining values into a slice, and closes the iterator.
*/
func (it *Iterator[T]) ToSlice() ([]*T, error) {
	defer it.Close()
	var result []*T
	for {
		row, ok := it.Next()
		if !ok {
			break
		}
		result = append(result, row)
	}
	if err := it.Err(); err != nil {
		return nil, oops.New(err, "error while iterating through db results")
	}
	return result, nil
}

func followPathThroughStructs(structPtrVal reflect.Value, path []int) (reflect.Value, reflect.StructField, error) {
	if len(path) < 1 {
		return reflect.Value{}, reflect.StructField{}, oops.New(nil, "can't follow an empty path")
	}

	if structPtrVal.Kind() != reflect.Ptr || structPtrVal.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, reflect.StructField{}, fmt.Errorf("structPtrVal must be a pointer to a struct; got value of type %s", structPtrVal.Type())
	}

	var field reflect.StructField
	val := structPtrVal
	for _, i := range path {
		if val.Kind() == reflect.Ptr && val.Type().Elem().Kind() == reflect.Struct {
			if val.IsNil() {
				val.Set(reflect.New(val.Type().Elem()))
			}
			val = val.Elem()
		}
		field = val.Type().Field(i)
		val = val.Field(i)
	}
	return val, field, nil
}
