package graphql

import (
	"context"
	"fmt"

	"github.com/fjod/dinecart/internal/domain"
)

type OrderService struct {
	client *Client
	tokens TokenSource
}

func NewOrderService(client *Client, tokens TokenSource) *OrderService {
	return &OrderService{client: client, tokens: tokens}
}

func (s *OrderService) CreateOrder(ctx context.Context, input domain.CreateOrderInput) (*domain.Order, error) {
	var data struct {
		CreateOrder *domain.Order `json:"createOrder"`
	}
	err := s.client.Do(ctx, s.tokens.Token(), Request{
		Query:         createOrderMutation,
		OperationName: opCreateOrder,
		Variables:     map[string]any{"input": input},
	}, &data)
	if err != nil {
		return nil, err
	}
	return checkOrder(opCreateOrder, data.CreateOrder)
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var data struct {
		GetOrderByID *domain.Order `json:"getOrderById"`
	}
	err := s.client.Do(ctx, s.tokens.Token(), Request{
		Query:         getOrderByIDQuery,
		OperationName: opGetOrderByID,
		Variables:     map[string]any{"orderId": orderID},
	}, &data)
	if err != nil {
		return nil, err
	}
	return checkOrder(opGetOrderByID, data.GetOrderByID)
}

func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var data struct {
		CancelOrder *domain.Order `json:"cancelOrder"`
	}
	err := s.client.Do(ctx, s.tokens.Token(), Request{
		Query:         cancelOrderMutation,
		OperationName: opCancelOrder,
		Variables:     map[string]any{"orderId": orderID},
	}, &data)
	if err != nil {
		return nil, err
	}
	return checkOrder(opCancelOrder, data.CancelOrder)
}

// UserOrders lists the user's orders, newest first as the API returns them.
// A zero limit leaves paging to the API.
func (s *OrderService) UserOrders(ctx context.Context, limit, offset int) ([]*domain.Order, error) {
	vars := map[string]any{}
	if limit > 0 {
		vars["limit"] = limit
	}
	if offset > 0 {
		vars["offset"] = offset
	}

	var data struct {
		GetUserOrders []*domain.Order `json:"getUserOrders"`
	}
	err := s.client.Do(ctx, s.tokens.Token(), Request{
		Query:         getUserOrdersQuery,
		OperationName: opGetUserOrders,
		Variables:     vars,
	}, &data)
	if err != nil {
		return nil, err
	}

	orders := make([]*domain.Order, 0, len(data.GetUserOrders))
	for _, o := range data.GetUserOrders {
		if _, err := checkOrder(opGetUserOrders, o); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func checkOrder(op string, o *domain.Order) (*domain.Order, error) {
	if o == nil || o.ID == "" {
		return nil, fmt.Errorf("%s: %w: no order returned", op, ErrMalformedResponse)
	}
	return o, nil
}

// Login exchanges credentials for a token. It needs no session.
func Login(ctx context.Context, client *Client, email, password string) (*domain.AuthPayload, error) {
	var data struct {
		LoginUser *domain.AuthPayload `json:"loginUser"`
	}
	err := client.Do(ctx, "", Request{
		Query:         loginUserMutation,
		OperationName: opLoginUser,
		Variables: map[string]any{
			"input": map[string]string{"email": email, "password": password},
		},
	}, &data)
	if err != nil {
		return nil, err
	}
	return checkAuth(opLoginUser, data.LoginUser)
}

// Register creates an account and returns its first token.
func Register(ctx context.Context, client *Client, input domain.RegisterInput) (*domain.AuthPayload, error) {
	var data struct {
		RegisterUser *domain.AuthPayload `json:"registerUser"`
	}
	err := client.Do(ctx, "", Request{
		Query:         registerUserMutation,
		OperationName: opRegisterUser,
		Variables:     map[string]any{"input": input},
	}, &data)
	if err != nil {
		return nil, err
	}
	return checkAuth(opRegisterUser, data.RegisterUser)
}

// Me returns the user the API resolves token to.
func Me(ctx context.Context, client *Client, token string) (*domain.User, error) {
	var data struct {
		Me *domain.User `json:"me"`
	}
	err := client.Do(ctx, token, Request{Query: getMeQuery, OperationName: opGetMe}, &data)
	if err != nil {
		return nil, err
	}
	if data.Me == nil || data.Me.ID == "" {
		return nil, fmt.Errorf("%s: %w: no user returned", opGetMe, ErrMalformedResponse)
	}
	return data.Me, nil
}

func checkAuth(op string, p *domain.AuthPayload) (*domain.AuthPayload, error) {
	if p == nil || p.Token == "" {
		return nil, fmt.Errorf("%s: %w: no token returned", op, ErrMalformedResponse)
	}
	return p, nil
}
