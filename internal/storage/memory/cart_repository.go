package memory

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cartRepositoryInMemory struct {
	binding
}

func (r *cartRepositoryInMemory) GetByUser(_ context.Context, userID int64) (domain.Cart, error) {
	cart := domain.Cart{UserID: userID}
	err := r.read(func(st *state) error {
		if id, ok := st.cartByUser[userID]; ok {
			cart = cloneCart(st.carts[id])
		}
		return nil
	})
	return cart, err
}

func (r *cartRepositoryInMemory) GetOrCreate(_ context.Context, userID int64) (domain.Cart, error) {
	var cart domain.Cart
	err := r.write(func(st *state) error {
		if id, ok := st.cartByUser[userID]; ok {
			cart = cloneCart(st.carts[id])
			return nil
		}
		st.seq.cart++
		now := time.Now().UTC()
		cart = domain.Cart{ID: st.seq.cart, UserID: userID, CreatedAt: now, UpdatedAt: now}
		st.carts[cart.ID] = cart
		st.cartByUser[userID] = cart.ID
		return nil
	})
	return cart, err
}

func (r *cartRepositoryInMemory) SaveItem(_ context.Context, item domain.CartItem) (domain.CartItem, error) {
	err := r.write(func(st *state) error {
		cart, ok := st.carts[item.CartID]
		if !ok {
			return domain.ErrCartItemNotFound
		}
		now := time.Now().UTC()
		item.UpdatedAt = now

		if item.ID == 0 {
			st.seq.cartItem++
			item.ID = st.seq.cartItem
			if item.CreatedAt.IsZero() {
				item.CreatedAt = now
			}
			cart.Items = append(cart.Items, item)
		} else {
			idx := cartItemIndex(cart, item.ID)
			if idx < 0 {
				return domain.ErrCartItemNotFound
			}
			cart.Items[idx] = item
		}
		cart.UpdatedAt = now
		st.carts[cart.ID] = cart
		return nil
	})
	return item, err
}

func (r *cartRepositoryInMemory) DeleteItem(_ context.Context, cartID, itemID int64) error {
	return r.write(func(st *state) error {
		cart, ok := st.carts[cartID]
		if !ok {
			return domain.ErrCartItemNotFound
		}
		idx := cartItemIndex(cart, itemID)
		if idx < 0 {
			return domain.ErrCartItemNotFound
		}
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		cart.UpdatedAt = time.Now().UTC()
		st.carts[cartID] = cart
		return nil
	})
}

func (r *cartRepositoryInMemory) Clear(_ context.Context, cartID int64) error {
	return r.write(func(st *state) error {
		cart, ok := st.carts[cartID]
		if !ok {
			return nil
		}
		cart.Items = nil
		cart.UpdatedAt = time.Now().UTC()
		st.carts[cartID] = cart
		return nil
	})
}

func cartItemIndex(cart domain.Cart, itemID int64) int {
	for i, item := range cart.Items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
