package database

// Table session queries
const (
	// ReserveTableSQL claims the lowest-ordinal available resource whose name
	// starts with the requested prefix. The conditional update plus SKIP LOCKED
	// makes concurrent reservations mutually exclusive without a read-then-write.
	ReserveTableSQL = `
		UPDATE tables SET available = FALSE
		WHERE id = (
			SELECT id FROM tables
			WHERE available AND name LIKE $1 || '%'
			ORDER BY COALESCE(NULLIF(regexp_replace(name, '\D', '', 'g'), '')::int, 0), name
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, name, capacity, available`

	ReleaseTableSQL = `
		UPDATE tables SET available = TRUE WHERE id = $1`

	ReleaseTableByNameSQL = `
		UPDATE tables SET available = TRUE WHERE name = $1`

	GetTableByNameSQL = `
		SELECT id, name, capacity, available FROM tables WHERE name = $1`
)

// Line item queries
const (
	// UpsertLineItemSQL merges a new quantity into the existing pending line
	// for the same occupant, order and product, or inserts a fresh one. The
	// merge recomputes total_value from the stored unit price so historical
	// pricing is never overwritten by the catalog.
	UpsertLineItemSQL = `
		INSERT INTO sale_line_items
			(business_id, order_number, occupant, product_id, product_name, quantity, unit_price, total_value, status, payment_method, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', 'none', $9)
		ON CONFLICT (business_id, occupant, order_number, product_name) WHERE status = 'pending'
		DO UPDATE SET
			quantity = sale_line_items.quantity + EXCLUDED.quantity,
			total_value = (sale_line_items.quantity + EXCLUDED.quantity) * sale_line_items.unit_price
		RETURNING id, order_number, invoice_number, occupant, product_id, product_name,
			quantity, unit_price, total_value, status, payment_method, notes, created_at`

	GetLineItemForUpdateSQL = `
		SELECT id, order_number, invoice_number, occupant, product_id, product_name,
			quantity, unit_price, total_value, status, payment_method, notes, created_at
		FROM sale_line_items
		WHERE id = $1 AND status = 'pending'
		FOR UPDATE`

	UpdateLineItemQuantitySQL = `
		UPDATE sale_line_items
		SET quantity = $2, total_value = $2 * unit_price
		WHERE id = $1 AND status = 'pending'
		RETURNING id, order_number, invoice_number, occupant, product_id, product_name,
			quantity, unit_price, total_value, status, payment_method, notes, created_at`

	DeleteLineItemSQL = `
		DELETE FROM sale_line_items WHERE id = $1 AND status = 'pending'`

	ListOpenItemsSQL = `
		SELECT id, order_number, invoice_number, occupant, product_id, product_name,
			quantity, unit_price, total_value, status, payment_method, notes, created_at
		FROM sale_line_items
		WHERE business_id = $1 AND occupant = $2 AND status = 'pending'
		ORDER BY created_at ASC, id ASC`
)

// Numbering queries
const (
	// OrderNumberLockSQL serializes number generation per business for the
	// duration of the surrounding transaction.
	OrderNumberLockSQL = `SELECT pg_advisory_xact_lock($1)`

	NextOrderNumberSQL = `
		SELECT COALESCE(MAX(order_number), 0) + 1
		FROM sale_line_items
		WHERE business_id = $1 AND created_at >= date_trunc('month', NOW())`
)

// Settlement queries
const (
	LockSettlementItemsSQL = `
		SELECT id, occupant, status, invoice_number, order_number
		FROM sale_line_items
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`

	SettleItemsSQL = `
		UPDATE sale_line_items
		SET status = 'paid', payment_method = $2, invoice_number = $3
		WHERE id = ANY($1) AND status = 'pending' AND occupant = $4
		RETURNING id`

	GetItemsByIDSQL = `
		SELECT id, order_number, invoice_number, occupant, product_id, product_name,
			quantity, unit_price, total_value, status, payment_method, notes, created_at
		FROM sale_line_items
		WHERE id = ANY($1)
		ORDER BY id`
)

// Cashier session queries
const (
	InsertCashierSessionSQL = `
		INSERT INTO cashier_sessions (business_id, cashier, opening_cash, status)
		VALUES ($1, $2, $3, 'open')
		RETURNING id, opened_at`

	GetCashierSessionSQL = `
		SELECT id, cashier, opened_at, closed_at, opening_cash, closing_cash,
			total_sales, total_expenses, net_utility, status
		FROM cashier_sessions
		WHERE id = $1 AND business_id = $2`

	HasOpenCashierSessionSQL = `
		SELECT EXISTS(SELECT 1 FROM cashier_sessions WHERE business_id = $1 AND status = 'open')`

	CloseCashierSessionSQL = `
		UPDATE cashier_sessions
		SET closed_at = $3, closing_cash = $4, total_sales = $5, total_expenses = $6,
			net_utility = $7, status = 'closed'
		WHERE id = $1 AND business_id = $2 AND status = 'open'`

	SumPaidSalesSQL = `
		SELECT COALESCE(SUM(total_value), 0)
		FROM sale_line_items
		WHERE business_id = $1 AND status = 'paid' AND created_at >= $2 AND created_at < $3`

	SumExpensesSQL = `
		SELECT COALESCE(SUM(amount), 0)
		FROM expenses
		WHERE business_id = $1 AND created_at >= $2 AND created_at < $3`

	InsertExpenseSQL = `
		INSERT INTO expenses (business_id, concept, amount)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
)

// Catalog and inventory queries
const (
	GetProductSQL = `
		SELECT id, name, price, prep_minutes, station FROM products WHERE id = $1`

	DeductInventorySQL = `
		UPDATE inventory SET stock = stock - $2 WHERE product_id = $1`
)
