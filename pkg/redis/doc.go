// Package redis connects to Redis with go-redis and provides a lease based
// Locker used to serialize operations on a subscription across processes.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	locker := redis.NewLocker(client, cfg)
//	release, err := locker.Lock(ctx, "subscription:"+id.String())
//	if err != nil {
//		return err
//	}
//	defer release()
//
// Locks are SET NX PX keys holding a random token. Release deletes the key
// only while it still holds the caller's token.
package redis
